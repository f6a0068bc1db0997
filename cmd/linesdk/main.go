package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/linesdk-go/internal/config"
	"github.com/alexjbarnes/linesdk-go/internal/logging"
	"github.com/alexjbarnes/linesdk-go/internal/state"
	"github.com/alexjbarnes/linesdk-go/linesdk"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

const usage = `usage: linesdk <command> [flags]

commands:
  login          open a web login and store the resulting token
  authorize-url  print an authorization URL with fresh state, nonce and PKCE values
  exchange       exchange an authorization code (-code, -verifier, -redirect, -nonce)
  show           print the stored token
  verify         verify the stored token with the server
  refresh        refresh the stored token
  revoke         revoke the stored access token
  logout         revoke the stored refresh token and forget the credential
  items          list the items in the credential namespace
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		if se, ok := linesdk.AsSDKError(err); ok {
			os.Exit(10 + se.Code()/1000)
		}

		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Debug("linesdk starting",
		slog.String("version", Version),
		slog.String("command", command),
		slog.String("channel_id", cfg.ChannelID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keychain, err := state.OpenAt(cfg.StatePath, cfg.StorageSecret)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer keychain.Close()

	service := keychain.Service(linesdk.CurrentVersion.ServiceName(cfg.BundleID))

	sdk, err := linesdk.Setup(linesdk.Options{
		ChannelID:          cfg.ChannelID,
		APIHost:            cfg.APIHost,
		OpenIDDiscoveryURL: cfg.OpenIDDiscoveryURL,
		IDTokenLeeway:      cfg.IDTokenLeeway,
		Storage:            service,
		HTTPClient:         linesdk.NewHTTPClient(cfg.HTTPTimeout),
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	sdk.Events.OnTokenUpdated(func(e linesdk.TokenUpdated) {
		logger.Debug("token updated", slog.Bool("replaced", e.Old != nil))
	})
	sdk.Events.OnTokenRemoved(func(linesdk.TokenRemoved) {
		logger.Debug("token removed")
	})

	switch command {
	case "login":
		return runLogin(ctx, cfg, sdk, logger)
	case "authorize-url":
		return runAuthorizeURL(cfg, sdk, args)
	case "exchange":
		return runExchange(ctx, sdk, args)
	case "show":
		return printYAML(tokenSummary(sdk.Store.Current()))
	case "verify":
		res, err := sdk.Auth.VerifyAccessToken(ctx, "")
		if err != nil {
			return err
		}

		return printYAML(res)
	case "refresh":
		tok, err := sdk.Auth.RefreshAccessToken(ctx)
		if err != nil {
			return err
		}

		return printYAML(tokenSummary(tok))
	case "revoke":
		return sdk.Auth.RevokeAccessToken(ctx, "")
	case "logout":
		return sdk.Login.Logout(ctx)
	case "items":
		keys, err := service.Keys()
		if err != nil {
			return fmt.Errorf("listing items: %w", err)
		}

		return printYAML(map[string]interface{}{
			"service": service.Name(),
			"items":   keys,
		})
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func callbackURL(cfg *config.Config) string {
	return "http://" + cfg.CallbackAddr + "/callback"
}

// runLogin prints the authorization URL, waits for the browser to return
// to the loopback callback, and completes the login.
func runLogin(ctx context.Context, cfg *config.Config, sdk *linesdk.SDK, logger *slog.Logger) error {
	req, err := sdk.Login.AuthorizationURL(callbackURL(cfg), nil)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.CallbackAddr)
	if err != nil {
		return fmt.Errorf("listening for callback: %w", err)
	}

	codes := make(chan string, 1)
	callbackErrs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := req.ParseCallback(r.URL.String())
		if err != nil {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
			select {
			case callbackErrs <- err:
			default:
			}

			return
		}

		fmt.Fprintln(w, "Login complete. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	fmt.Fprintf(os.Stderr, "Open this URL in a browser to log in:\n\n  %s\n\n", req.URL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}

		return nil
	})

	var result *linesdk.LoginResult

	g.Go(func() error {
		defer srv.Close()

		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-callbackErrs:
			return err
		case code := <-codes:
			logger.Debug("authorization code received")

			res, err := sdk.Login.CompleteLogin(gctx, req.Parameters(code))
			if err != nil {
				return err
			}

			result = res

			return nil
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return printYAML(tokenSummary(result.AccessToken))
}

func runAuthorizeURL(cfg *config.Config, sdk *linesdk.SDK, args []string) error {
	fs := flag.NewFlagSet("authorize-url", flag.ContinueOnError)
	redirect := fs.String("redirect", callbackURL(cfg), "redirect URI registered for the channel")

	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := sdk.Login.AuthorizationURL(*redirect, nil)
	if err != nil {
		return err
	}

	return printYAML(map[string]string{
		"url":           req.URL,
		"state":         req.State,
		"nonce":         req.Nonce,
		"code_verifier": req.PKCE.Verifier,
		"redirect_uri":  req.RedirectURI,
	})
}

func runExchange(ctx context.Context, sdk *linesdk.SDK, args []string) error {
	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	code := fs.String("code", "", "authorization code")
	verifier := fs.String("verifier", "", "PKCE code verifier")
	redirect := fs.String("redirect", "", "redirect URI used for the authorization request")
	nonce := fs.String("nonce", "", "nonce sent with the authorization request")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *code == "" || *verifier == "" || *redirect == "" {
		return errors.New("-code, -verifier and -redirect are required")
	}

	res, err := sdk.Login.CompleteLogin(ctx, linesdk.LoginParameters{
		Code:         *code,
		CodeVerifier: *verifier,
		RedirectURI:  *redirect,
		Permissions:  []linesdk.LoginPermission{linesdk.PermissionProfile, linesdk.PermissionOpenID},
		Nonce:        *nonce,
	})
	if err != nil {
		return err
	}

	return printYAML(tokenSummary(res.AccessToken))
}

type tokenView struct {
	LoggedIn    bool                      `yaml:"logged_in"`
	TokenType   string                    `yaml:"token_type,omitempty"`
	CreatedAt   time.Time                 `yaml:"created_at,omitempty"`
	ExpiresAt   time.Time                 `yaml:"expires_at,omitempty"`
	Expired     bool                      `yaml:"expired,omitempty"`
	Permissions []linesdk.LoginPermission `yaml:"permissions,omitempty"`
	UserID      string                    `yaml:"user_id,omitempty"`
	Name        string                    `yaml:"name,omitempty"`
	Email       string                    `yaml:"email,omitempty"`
}

func tokenSummary(t *linesdk.AccessToken) tokenView {
	if t == nil {
		return tokenView{}
	}

	v := tokenView{
		LoggedIn:    true,
		TokenType:   t.TokenType,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt(),
		Expired:     t.Expired(time.Now()),
		Permissions: t.Permissions,
	}

	if t.IDToken != nil {
		v.UserID = t.IDToken.Payload.Subject
		v.Name = t.IDToken.Payload.Name
		v.Email = t.IDToken.Payload.Email
	}

	return v
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return enc.Close()
}
