// Package auth implements the credentials sink and the pre/post-handler
// filters (AuthFilter, LoggingFilter) used by the HTTP engine and the
// SOCKS engines.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/vellum-proxy/vellum/internal/domain"
)

// Credentials is the live, hot-reloadable user/pass sink. The internal map
// is swapped atomically on reload so concurrent lookups never observe a
// torn update.
type Credentials struct {
	entries atomic.Pointer[map[string]string]
}

// NewCredentials builds a sink from an AuthSource: a YAML entry list, a
// directory where each filename is a username and its content the
// password (dotfiles ignored), and a "u1:p1,u2:p2" environment variable.
// Every populated source is merged; for the same username the directory
// overrides YAML and the environment variable overrides both.
func NewCredentials(src domain.AuthSource) (*Credentials, error) {
	c := &Credentials{}
	m, err := load(src)
	if err != nil {
		return nil, err
	}
	c.entries.Store(&m)
	return c, nil
}

// Reload re-reads the source and atomically swaps the credential map.
func (c *Credentials) Reload(src domain.AuthSource) error {
	m, err := load(src)
	if err != nil {
		return err
	}
	c.entries.Store(&m)
	return nil
}

func load(src domain.AuthSource) (map[string]string, error) {
	m := make(map[string]string)

	for _, e := range src.YAMLEntries {
		m[e.Username] = e.Password
	}

	if src.Directory != "" {
		entries, err := os.ReadDir(src.Directory)
		if err != nil {
			return nil, fmt.Errorf("reading credentials directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			content, err := os.ReadFile(filepath.Join(src.Directory, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("reading credential file %s: %w", e.Name(), err)
			}
			m[e.Name()] = strings.TrimSpace(string(content))
		}
	}

	if src.EnvVar != "" {
		raw := os.Getenv(src.EnvVar)
		for _, pair := range strings.Split(raw, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				continue
			}
			m[parts[0]] = parts[1]
		}
	}

	return m, nil
}

func (c *Credentials) lookup(user string) (string, bool) {
	m := *c.entries.Load()
	pass, ok := m[user]
	return pass, ok
}

// UserExists reports whether a username is known, used by the SOCKS4
// engine's USERID check.
func (c *Credentials) UserExists(user string) bool {
	_, ok := c.lookup(user)
	return ok
}

// Authenticate checks a plain username/password pair with a constant-time
// comparison over UTF-8 bytes.
func (c *Credentials) Authenticate(user, pass string) bool {
	want, ok := c.lookup(user)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(pass)) == 1
}

// AuthenticateBasic checks an HTTP "Basic <base64>" Authorization header
// value, with the "Basic " prefix already stripped.
func (c *Credentials) AuthenticateBasic(basicHeader string) bool {
	decoded, err := base64.StdEncoding.DecodeString(basicHeader)
	if err != nil {
		return false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return false
	}
	return c.Authenticate(parts[0], parts[1])
}
