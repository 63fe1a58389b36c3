package auth

import (
	"encoding/base64"
	"strings"

	"github.com/vellum-proxy/vellum/internal/domain"
)

// RequestContext is the minimal per-request state the pre/post-handler
// chain reads and writes, mirroring spec §4.3's RequestContext.
type RequestContext struct {
	Method   string
	URI      string
	Headers  map[string]string
	RemoteIP string
	User     string
	Bytes    int64
	Status   int
}

// PreHandler runs before routing; returning false denies the request.
type PreHandler interface {
	PreHandle(ctx *RequestContext) (bool, error)
}

// PostHandler runs after the response has been written.
type PostHandler interface {
	PostHandle(ctx *RequestContext)
}

// AuthFilter enforces Basic authentication when the listener requires it.
type AuthFilter struct {
	Enabled     bool
	Credentials *Credentials
}

func (f *AuthFilter) PreHandle(ctx *RequestContext) (bool, error) {
	if !f.Enabled {
		return true, nil
	}

	header := ctx.Headers["proxy-authorization"]
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false, &domain.AuthError{Reason: "missing or malformed Proxy-Authorization header"}
	}

	token := strings.TrimPrefix(header, prefix)
	if !f.Credentials.AuthenticateBasic(token) {
		return false, &domain.AuthError{Reason: "invalid credentials"}
	}

	if decoded, err := decodeBasicUser(token); err == nil {
		ctx.User = decoded
	}
	return true, nil
}

func decodeBasicUser(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	parts := strings.SplitN(string(raw), ":", 2)
	return parts[0], nil
}
