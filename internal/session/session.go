// Package session provides the cookie-backed HTTP session the remote client
// sends its requests through.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/homecloud/internal/crypto"
	"github.com/slipstream/homecloud/internal/remote/types"
)

const (
	CookieUserID    = "userid"
	CookieSessionID = "sessionid"
)

var _ types.Session = (*HTTPSession)(nil)

// Decrypter turns stored cookie values back into plaintext.
type Decrypter interface {
	Decrypt(value string) (string, error)
}

// Config holds the cookies and transport settings for a session.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	UserID    string
	SessionID string
	Cookies   map[string]string // extra cookies sent alongside userid/sessionid
}

// HTTPSession is an http.Client with a cookie jar scoped to the remote origin.
type HTTPSession struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	secrets    Decrypter
	logger     zerolog.Logger

	mu sync.Mutex
}

// New creates an unauthenticated session. secrets may be nil when no cookie
// value is encrypted.
func New(cfg Config, secrets Decrypter, logger zerolog.Logger) (*HTTPSession, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = types.DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &HTTPSession{
		config:  cfg,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		secrets: secrets,
		logger:  logger.With().Str("component", "session").Logger(),
	}, nil
}

// Do sends req with the session cookies attached.
func (s *HTTPSession) Do(req *http.Request) (*http.Response, error) {
	if s.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}
	return s.httpClient.Do(req)
}

// IsAuthenticated reports whether a non-empty session cookie is held for the origin.
func (s *HTTPSession) IsAuthenticated() bool {
	for _, c := range s.httpClient.Jar.Cookies(s.baseURL) {
		if c.Name == CookieSessionID && c.Value != "" {
			return true
		}
	}
	return false
}

// Authenticate installs the configured cookies into the jar, decrypting any
// encrypted values first. Without a session id it fails with ErrNotAuthenticated.
func (s *HTTPSession) Authenticate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]string, len(s.config.Cookies)+2)
	for name, value := range s.config.Cookies {
		values[name] = value
	}
	if s.config.UserID != "" {
		values[CookieUserID] = s.config.UserID
	}
	if s.config.SessionID != "" {
		values[CookieSessionID] = s.config.SessionID
	}

	if values[CookieSessionID] == "" {
		return fmt.Errorf("%w: no %s cookie configured", types.ErrNotAuthenticated, CookieSessionID)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		value, err := s.decrypt(values[name])
		if err != nil {
			return fmt.Errorf("failed to decrypt cookie %q: %w", name, err)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}

	s.httpClient.Jar.SetCookies(s.baseURL, cookies)

	s.logger.Debug().
		Str("host", s.baseURL.Host).
		Strs("cookies", names).
		Msg("session cookies installed")

	return nil
}

func (s *HTTPSession) decrypt(value string) (string, error) {
	if !crypto.IsEncrypted(value) {
		return value, nil
	}
	if s.secrets == nil {
		return "", crypto.ErrNoPassphrase
	}
	return s.secrets.Decrypt(value)
}
