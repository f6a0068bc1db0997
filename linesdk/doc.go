// Package linesdk is a client for LINE Login's token lifecycle: it
// exchanges authorization codes, refreshes, revokes and verifies access
// tokens, verifies identity tokens against the provider's published keys,
// and keeps the current credential in sealed storage.
//
// Every operation blocks until the server answers or ctx ends; there is no
// retry. All returned errors are *SDKError values carrying a stable Code.
package linesdk
