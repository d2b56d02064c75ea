// Package cookie persists the session token as a cookie scoped to the
// authentication service.
package cookie

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"

	"github.com/layer-3/authgate/ports"
)

// Name is the cookie the session token lives in.
const Name = "jwt"

// Store implements ports.TokenStore on top of a cookie jar
type Store struct {
	jar http.CookieJar
	url *url.URL
}

var _ ports.TokenStore = (*Store)(nil)

// NewStore creates a store with a fresh jar for the site serving baseURL.
func NewStore(baseURL string) (*Store, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return NewStoreWithJar(jar, baseURL)
}

// NewStoreWithJar creates a store over an existing jar.
func NewStoreWithJar(jar http.CookieJar, baseURL string) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", baseURL)
	}
	return &Store{jar: jar, url: u}, nil
}

// Jar returns the underlying jar so an http.Client can send the cookie.
func (s *Store) Jar() http.CookieJar {
	return s.jar
}

// Get returns the stored token
func (s *Store) Get() (string, bool) {
	for _, c := range s.jar.Cookies(s.url) {
		if c.Name == Name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Set stores the token. No expiry is set; the server decides how long it is valid.
func (s *Store) Set(token string) error {
	if token == "" {
		return fmt.Errorf("empty session token")
	}
	s.jar.SetCookies(s.url, []*http.Cookie{{
		Name:     Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

// Remove deletes the token cookie
func (s *Store) Remove() error {
	s.jar.SetCookies(s.url, []*http.Cookie{{
		Name:   Name,
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}
