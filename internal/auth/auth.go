// Package auth validates the Proxy-Authorization header against the single
// credential pair configured for the proxy.
package auth

import (
	"encoding/base64"
	"strings"

	"fwdproxy/internal/config"
)

const basicPrefix = "Basic "

// Validator checks a client-supplied Proxy-Authorization header value
// against the configured credential. A zero-value Validator (no Auth
// configured) authorizes everything.
type Validator struct {
	auth *config.Auth
}

// New builds a Validator from the proxy configuration.
func New(cfg config.Config) Validator {
	if !cfg.AuthEnabled() {
		return Validator{}
	}
	return Validator{auth: cfg.Auth}
}

// Enabled reports whether this validator enforces credentials.
func (v Validator) Enabled() bool {
	return v.auth != nil
}

// Authorize checks a client-supplied Proxy-Authorization header: no
// configured credential always passes; an absent header always fails;
// otherwise the header must be exactly "Basic " followed by standard
// base64 of "user:pass", matched byte for byte against the configured
// pair.
func (v Validator) Authorize(header string) bool {
	if v.auth == nil {
		return true
	}
	if header == "" {
		return false
	}
	if !strings.HasPrefix(header, basicPrefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(basicPrefix):])
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == v.auth.Username && pass == v.auth.Password
}
