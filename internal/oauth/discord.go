package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/fileforge/fileforge/internal/model"
	"golang.org/x/oauth2"
)

const defaultDiscordAPIBaseURL = "https://discord.com/api"

// discordEndpoint is Discord's OAuth2 endpoint. x/oauth2 ships none for it.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Discord signs users in with a Discord application.
type Discord struct {
	config     *oauth2.Config
	apiBaseURL string
}

// NewDiscord creates the Discord provider.
func NewDiscord(cfg Config) *Discord {
	endpoint := discordEndpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultDiscordAPIBaseURL
	}

	return &Discord{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: strings.TrimSuffix(apiBase, "/"),
	}
}

func (d *Discord) Name() model.Provider { return model.ProviderDiscord }

func (d *Discord) AuthCodeURL(state string) string {
	return d.config.AuthCodeURL(state)
}

// Exchange trades the callback code for a token and fetches /users/@me.
// Unverified Discord emails are not trusted.
func (d *Discord) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	token, err := d.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	var profile model.DiscordProfile
	if err := getJSON(ctx, d.config.Client(ctx, token), d.apiBaseURL+"/users/@me", &profile); err != nil {
		return nil, err
	}

	email := profile.ProfileEmail()
	if email == "" {
		return nil, ErrNoEmail
	}

	return &UserInfo{
		ProviderUserID: profile.ID,
		Email:          email,
		Profile:        &profile,
	}, nil
}
