// Package oauth wraps the external identity providers used for sign-in and
// identity linking.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/fileforge/fileforge/internal/model"
	"golang.org/x/oauth2"
)

// Common provider errors.
var (
	ErrExchangeFailed = errors.New("oauth: code exchange failed")
	ErrProfileFailed  = errors.New("oauth: profile request failed")
	ErrNoEmail        = errors.New("oauth: provider returned no verified email")
)

// UserInfo is what a provider tells us about the signed-in user.
type UserInfo struct {
	ProviderUserID string
	Email          string
	Profile        model.Profile
}

// Provider is a single OAuth identity provider.
type Provider interface {
	Name() model.Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*UserInfo, error)
}

// Config holds the client registration shared by all providers.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overrides for tests.
	Endpoint   *oauth2.Endpoint
	APIBaseURL string
}

// Registry looks providers up by name.
type Registry struct {
	providers map[model.Provider]Provider
}

// NewRegistry creates a registry of the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.Provider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name model.Provider) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered providers in a stable order.
func (r *Registry) Names() []model.Provider {
	names := make([]model.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// getJSON performs an authenticated GET and decodes the JSON body into dst.
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s returned %d", ErrProfileFailed, req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProfileFailed, req.URL.Path, err)
	}
	return nil
}
