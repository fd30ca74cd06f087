package oauth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fileforge/fileforge/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPIBaseURL = "https://api.github.com"

// GitHub signs users in with a GitHub OAuth app.
type GitHub struct {
	config     *oauth2.Config
	apiBaseURL string
}

// NewGitHub creates the GitHub provider.
func NewGitHub(cfg Config) *GitHub {
	endpoint := github.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultGitHubAPIBaseURL
	}

	return &GitHub{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: strings.TrimSuffix(apiBase, "/"),
	}
}

func (g *GitHub) Name() model.Provider { return model.ProviderGitHub }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the callback code for a token and fetches the profile.
// A missing public email is filled from /user/emails, primary verified first.
func (g *GitHub) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	client := g.config.Client(ctx, token)

	var profile model.GitHubProfile
	if err := getJSON(ctx, client, g.apiBaseURL+"/user", &profile); err != nil {
		return nil, err
	}

	if profile.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, g.apiBaseURL+"/user/emails", &emails); err != nil {
			return nil, err
		}
		profile.Email = pickGitHubEmail(emails)
	}
	if profile.Email == "" {
		return nil, ErrNoEmail
	}

	return &UserInfo{
		ProviderUserID: strconv.FormatInt(profile.ID, 10),
		Email:          profile.Email,
		Profile:        &profile,
	}, nil
}

func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
