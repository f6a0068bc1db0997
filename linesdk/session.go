package linesdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	cryptoerr "github.com/alexjbarnes/linesdk-go/internal/errors"
)

const (
	// maxRedirects bounds same-host redirects on an API call.
	maxRedirects = 10

	// defaultHTTPTimeout applies when no custom client is provided.
	defaultHTTPTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. Token and key set
	// responses are small JSON documents.
	maxAPIResponseBytes = 1024 * 1024

	// maxErrorBodyBytes caps the raw body carried by a status error.
	maxErrorBodyBytes = 256
)

// sameHostRedirectPolicy keeps token and revoke form bodies on the API
// host: a redirect is followed only within the host of the first request.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}

	origin := via[0].URL
	if len(via) >= maxRedirects {
		return fmt.Errorf("%s%s: gave up after %d redirects", origin.Host, origin.Path, len(via))
	}

	if !strings.EqualFold(req.URL.Host, origin.Host) {
		return fmt.Errorf("%s%s: refusing redirect to %s", origin.Host, origin.Path, req.URL.Host)
	}

	return nil
}

// NewHTTPClient returns a client with the given timeout and the same-host
// redirect policy.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: sameHostRedirectPolicy,
	}
}

// Session sends Requests to the API host.
type Session struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	// token supplies the bearer credential for AuthToken requests.
	token func() *AccessToken
}

// NewSession creates a session for host (a bare host name such as
// "api.line.me"). A nil httpClient gets NewHTTPClient's defaults.
func NewSession(host string, httpClient *http.Client, logger *slog.Logger) *Session {
	if httpClient == nil {
		httpClient = NewHTTPClient(defaultHTTPTimeout)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		httpClient: httpClient,
		baseURL:    "https://" + host,
		logger:     logger,
	}
}

// sanitizeResponseBody renders at most maxErrorBodyBytes of a response
// body for an SDKError, with control characters and invalid UTF-8 shown as '?'.
func sanitizeResponseBody(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (r < 0x20 && r != '\n' && r != '\r' && r != '\t') {
			return '?'
		}

		return r
	}, string(body))
}

func (s *Session) target(req Request) (string, error) {
	raw := s.baseURL + req.Path()
	if abs, ok := req.(AbsoluteURLRequest); ok {
		raw = abs.URL()
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", newError(ReasonMissingURL, raw, err)
	}

	return u.String(), nil
}

func encodeParameters(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	return values.Encode()
}

func (s *Session) build(ctx context.Context, req Request) (*http.Request, error) {
	target, err := s.target(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader

	params := req.Parameters()
	if len(params) > 0 {
		if req.Method() == http.MethodGet {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}

			target += sep + encodeParameters(params)
		} else {
			body = strings.NewReader(encodeParameters(params))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), target, body)
	if err != nil {
		return nil, newError(ReasonMissingURL, target, err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "linesdk-go/"+SDKVersion)

	if req.Authentication() == AuthToken {
		var token *AccessToken
		if s.token != nil {
			token = s.token()
		}

		if token == nil {
			return nil, newError(ReasonLackOfAccessToken, req.Path(), nil)
		}

		httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	}

	return httpReq, nil
}

// Send performs req and decodes the JSON response into out. A nil out
// discards the body.
func (s *Session) Send(ctx context.Context, req Request, out interface{}) error {
	httpReq, err := s.build(ctx, req)
	if err != nil {
		return err
	}

	endpoint := httpReq.URL.Path

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return newError(ReasonURLSessionError, "sending request to "+endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return newError(ReasonURLSessionError, "reading response from "+endpoint, err)
	}

	s.logger.Debug("api response",
		slog.String("method", httpReq.Method),
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(respBody)),
	)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		acceptor, accepts := req.(StatusAcceptor)
		if !accepts || !acceptor.AcceptStatus(resp.StatusCode) {
			return statusError(resp.StatusCode, respBody)
		}

		s.logger.Debug("non-2xx status accepted as success",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
		)

		return nil
	}

	if t, ok := req.(ResponseTransformer); ok {
		respBody = t.TransformResponse(respBody)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		if _, isCrypto := cryptoerr.AsCrypto(err); isCrypto {
			return fromCrypto(err)
		}

		return newError(ReasonDataParsingFailed, "decoding response from "+endpoint, err)
	}

	return nil
}

func statusError(code int, body []byte) *SDKError {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && (apiErr.Error != "" || apiErr.Message != "") {
		return newStatusError(code, &apiErr, sanitizeResponseBody(body))
	}

	return newStatusError(code, nil, sanitizeResponseBody(body))
}
