package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fileforge/fileforge/internal/model"
	"golang.org/x/oauth2"
)

// newProviderServer serves a token endpoint plus the given API routes.
func newProviderServer(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "bearer",
		})
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/callback",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIBaseURL: srv.URL,
	}
}

func TestGitHub_ExchangePublicEmail(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, map[string]any{
		"/user": map[string]any{"id": 42, "login": "octo", "email": "octo@example.com"},
	})

	info, err := NewGitHub(testConfig(srv)).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if info.ProviderUserID != "42" {
		t.Errorf("ProviderUserID = %q, want 42", info.ProviderUserID)
	}
	if info.Email != "octo@example.com" {
		t.Errorf("Email = %q", info.Email)
	}
	if info.Profile.ProfileProvider() != model.ProviderGitHub {
		t.Errorf("profile provider = %q", info.Profile.ProfileProvider())
	}
}

func TestGitHub_ExchangeFallsBackToEmailsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, map[string]any{
		"/user": map[string]any{"id": 7, "login": "private"},
		"/user/emails": []map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "main@example.com", "primary": true, "verified": true},
		},
	})

	info, err := NewGitHub(testConfig(srv)).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if info.Email != "main@example.com" {
		t.Errorf("Email = %q, want primary verified email", info.Email)
	}
	if info.Profile.ProfileEmail() != "main@example.com" {
		t.Errorf("profile email not filled: %q", info.Profile.ProfileEmail())
	}
}

func TestGitHub_ExchangeBadCode(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, nil)

	_, err := NewGitHub(testConfig(srv)).Exchange(context.Background(), "bad-code")
	if !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("error = %v, want ErrExchangeFailed", err)
	}
}

func TestDiscord_Exchange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		me        map[string]any
		wantEmail string
		wantErr   error
	}{
		{
			name:      "verified email",
			me:        map[string]any{"id": "9001", "username": "wumpus", "email": "w@example.com", "verified": true},
			wantEmail: "w@example.com",
		},
		{
			name:    "unverified email",
			me:      map[string]any{"id": "9001", "username": "wumpus", "email": "w@example.com", "verified": false},
			wantErr: ErrNoEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newProviderServer(t, map[string]any{"/users/@me": tt.me})
			info, err := NewDiscord(testConfig(srv)).Exchange(context.Background(), "good-code")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if info.Email != tt.wantEmail || info.ProviderUserID != "9001" {
				t.Errorf("info = %+v", info)
			}
		})
	}
}

func TestAuthCodeURL_CarriesState(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, nil)
	for _, p := range []Provider{NewGitHub(testConfig(srv)), NewDiscord(testConfig(srv))} {
		raw := p.AuthCodeURL("state-xyz")
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if u.Query().Get("state") != "state-xyz" {
			t.Errorf("%s: state missing in %q", p.Name(), raw)
		}
		if !strings.HasPrefix(raw, srv.URL+"/authorize") {
			t.Errorf("%s: unexpected auth URL %q", p.Name(), raw)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(NewDiscord(Config{}), NewGitHub(Config{}))

	if _, ok := r.Get(model.ProviderGitHub); !ok {
		t.Error("github not registered")
	}
	if _, ok := r.Get("gitlab"); ok {
		t.Error("unexpected provider gitlab")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != model.ProviderDiscord || names[1] != model.ProviderGitHub {
		t.Errorf("Names() = %v", names)
	}
}
