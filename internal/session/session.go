// Package session holds the bearer credential issued at login and presents
// it to outbound API requests.
package session

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/tgienger/tareas/internal/models"
)

// Lifetime is how long a credential stays valid after it is set
const Lifetime = 24 * time.Hour

// SameSiteStrict limits the credential to requests for the host it was issued for
const SameSiteStrict = "Strict"

// ErrNoCredential is returned when a request needs a credential and none is stored
var ErrNoCredential = errors.New("no credential")

// Storage persists the credential. Implementations enforce expiry when loading.
type Storage interface {
	SaveCredential(c models.Credential) error
	LoadCredential(now time.Time) (*models.Credential, error)
	DeleteCredential() error
}

// Store is the single owner of the credential. It never fails: storage
// errors are logged and read as an absent credential.
type Store struct {
	storage Storage
	host    string
	logger  *log.Logger
	now     func() time.Time
}

// NewStore creates a store whose credentials are scoped to the host of apiURL
func NewStore(storage Storage, apiURL string, logger *log.Logger) *Store {
	host := ""
	if u, err := url.Parse(apiURL); err == nil {
		host = u.Hostname()
	}
	return &Store{
		storage: storage,
		host:    host,
		logger:  logger,
		now:     time.Now,
	}
}

// SetCredential stores token for one day. The credential is marked secure
// unless the API host is local or on a private network.
func (s *Store) SetCredential(token string) {
	c := models.Credential{
		Token:     token,
		Host:      s.host,
		Secure:    !IsLocalHost(s.host),
		SameSite:  SameSiteStrict,
		ExpiresAt: s.now().Add(Lifetime),
	}
	if err := s.storage.SaveCredential(c); err != nil {
		s.logger.Error("failed to save credential", "error", err)
		return
	}
	s.logger.Debug("credential stored", "host", c.Host, "secure", c.Secure, "expires", c.ExpiresAt)
}

// Credential returns the current token, or false when none is stored or it expired
func (s *Store) Credential() (string, bool) {
	c := s.current()
	if c == nil {
		return "", false
	}
	return c.Token, true
}

// Clear removes the credential
func (s *Store) Clear() {
	if err := s.storage.DeleteCredential(); err != nil {
		s.logger.Error("failed to clear credential", "error", err)
		return
	}
	s.logger.Debug("credential cleared")
}

// Token implements oauth2.TokenSource
func (s *Store) Token() (*oauth2.Token, error) {
	c := s.current()
	if c == nil {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}, nil
}

// Transport returns a round tripper that attaches the credential as a bearer
// token. Requests outside the credential's scope are sent without it.
func (s *Store) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{
		Source: s,
		Base:   &scopeTransport{store: s, base: base},
	}
}

func (s *Store) current() *models.Credential {
	c, err := s.storage.LoadCredential(s.now())
	if err != nil {
		s.logger.Error("failed to load credential", "error", err)
		return nil
	}
	return c
}

// scopeTransport strips the Authorization header from requests the stored
// credential must not reach: another host, or plain HTTP for a secure credential.
type scopeTransport struct {
	store *Store
	base  http.RoundTripper
}

func (t *scopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.store.current()
	if c != nil && !inScope(c, req.URL) {
		t.store.logger.Warn("credential withheld from out-of-scope request",
			"host", req.URL.Hostname(), "scheme", req.URL.Scheme)
		req = req.Clone(req.Context())
		req.Header.Del("Authorization")
	}
	return t.base.RoundTrip(req)
}

func inScope(c *models.Credential, u *url.URL) bool {
	if c.Secure && u.Scheme != "https" {
		return false
	}
	if c.SameSite == SameSiteStrict && c.Host != "" && !strings.EqualFold(c.Host, u.Hostname()) {
		return false
	}
	return true
}

// IsLocalHost reports whether host names a development machine: localhost,
// a loopback address, or a private-network address such as 192.168.x.x.
func IsLocalHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}
