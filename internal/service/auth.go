package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/cache"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/oauth"
	"github.com/fileforge/fileforge/internal/repository"
)

const (
	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultStateTTL       = 10 * time.Minute
	defaultPendingLinkTTL = time.Hour
)

// ProviderLookup resolves configured OAuth providers.
type ProviderLookup interface {
	Get(name model.Provider) (oauth.Provider, bool)
	Names() []model.Provider
}

// AuthDeps wires the collaborators of AuthService.
type AuthDeps struct {
	Providers  ProviderLookup
	Identities IdentityStore
	Sessions   SessionStore
	States     OAuthStateStore
	Pending    PendingLinkStore
	Events     EventPublisher
	Logger     *slog.Logger

	SessionTTL     time.Duration
	StateTTL       time.Duration
	PendingLinkTTL time.Duration
}

// AuthService signs users in with OAuth providers and links further
// providers to an existing account.
type AuthService struct {
	providers      ProviderLookup
	identities     IdentityStore
	sessions       SessionStore
	states         OAuthStateStore
	pending        PendingLinkStore
	events         EventPublisher
	logger         *slog.Logger
	sessionTTL     time.Duration
	stateTTL       time.Duration
	pendingLinkTTL time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(deps AuthDeps) *AuthService {
	s := &AuthService{
		providers:      deps.Providers,
		identities:     deps.Identities,
		sessions:       deps.Sessions,
		states:         deps.States,
		pending:        deps.Pending,
		events:         deps.Events,
		logger:         deps.Logger,
		sessionTTL:     deps.SessionTTL,
		stateTTL:       deps.StateTTL,
		pendingLinkTTL: deps.PendingLinkTTL,
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "auth")
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	if s.stateTTL <= 0 {
		s.stateTTL = defaultStateTTL
	}
	if s.pendingLinkTTL <= 0 {
		s.pendingLinkTTL = defaultPendingLinkTTL
	}
	return s
}

// LinkCollision is returned from a link callback when the provider identity
// already belongs to another account.
type LinkCollision struct {
	Provider model.Provider
	Email    string
}

// CallbackResult is the outcome of an OAuth callback.
type CallbackResult struct {
	// Session and Token are set when the callback signed a user in.
	Session *model.Session
	Token   string

	// Link reports a link flow; Linked is true once the identity is attached.
	Link      bool
	Linked    bool
	Collision *LinkCollision

	// Refused is set on login when another account holds the provider email.
	Refused bool
}

// Providers lists the configured provider names.
func (s *AuthService) Providers() []model.Provider {
	return s.providers.Names()
}

// SessionTTL is how long new sessions stay valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// BeginLogin starts an OAuth redirect. A non-empty linkAccountID links the
// provider to that account instead of signing in.
func (s *AuthService) BeginLogin(ctx context.Context, provider, linkAccountID string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	state, err := auth.GenerateOAuthState()
	if err != nil {
		return "", err
	}
	value := &model.OAuthState{
		Provider:      p.Name(),
		LinkAccountID: linkAccountID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.states.SaveOAuthState(ctx, state, value, s.stateTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return p.AuthCodeURL(state), nil
}

// Callback completes an OAuth redirect.
func (s *AuthService) Callback(ctx context.Context, provider, state, code string) (*CallbackResult, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	if state == "" || code == "" {
		return nil, ErrUnauthorized
	}

	saved, err := s.states.ConsumeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if saved.Provider != p.Name() {
		return nil, ErrUnauthorized
	}

	info, err := p.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, oauth.ErrNoEmail) {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if saved.IsLink() {
		return s.link(ctx, saved.LinkAccountID, p.Name(), info)
	}
	return s.login(ctx, p.Name(), info)
}

// Authenticate resolves a session token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, auth.QuickHash(token))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if session.IsExpired() {
		return nil, ErrUnauthorized
	}
	return session, nil
}

// Logout ends the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, auth.QuickHash(token)); err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return nil
}

func (s *AuthService) provider(name string) (oauth.Provider, error) {
	p, ok := model.ParseProvider(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrBadRequest, name)
	}
	prov, ok := s.providers.Get(p)
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not configured", ErrBadRequest, name)
	}
	return prov, nil
}

func (s *AuthService) login(ctx context.Context, provider model.Provider, info *oauth.UserInfo) (*CallbackResult, error) {
	identity, err := s.identities.GetIdentityByProviderUser(ctx, provider, info.ProviderUserID)
	switch {
	case err == nil:
		return s.signIn(ctx, identity.AccountID, provider)
	case !errors.Is(err, repository.ErrIdentityNotFound):
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if email := model.NormalizeEmail(info.Email); email != "" {
		_, owner, err := s.identities.FindCollision(ctx, provider, email, "")
		switch {
		case err == nil:
			s.logger.Info("login refused: email held by another account",
				"provider", provider,
				"existing_account_id", owner.ID,
			)
			return &CallbackResult{Refused: true}, nil
		case !errors.Is(err, repository.ErrIdentityNotFound):
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
	}

	now := time.Now().UTC()
	account := &model.Account{
		ID:              uuid.NewString(),
		Email:           info.Email,
		PrimaryProvider: provider,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	identity = &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Provider:       provider,
		ProviderUserID: info.ProviderUserID,
		Profile:        info.Profile,
		CreatedAt:      now,
	}
	if err := s.identities.CreateAccount(ctx, account, identity); err != nil {
		if errors.Is(err, repository.ErrIdentityTaken) {
			return nil, fmt.Errorf("%w: identity was registered concurrently, retry sign-in", ErrLookupFailed)
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("account created", "account_id", account.ID, "provider", provider)
	return s.signIn(ctx, account.ID, provider)
}

func (s *AuthService) link(ctx context.Context, accountID string, provider model.Provider, info *oauth.UserInfo) (*CallbackResult, error) {
	if _, err := s.identities.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	existing, err := s.identities.GetIdentityByProviderUser(ctx, provider, info.ProviderUserID)
	switch {
	case err == nil && existing.AccountID == accountID:
		return &CallbackResult{Link: true, Linked: true}, nil
	case err == nil:
		return s.holdLink(ctx, accountID, provider, info)
	case !errors.Is(err, repository.ErrIdentityNotFound):
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if email := model.NormalizeEmail(info.Email); email != "" {
		_, _, err := s.identities.FindCollision(ctx, provider, email, accountID)
		switch {
		case err == nil:
			return s.holdLink(ctx, accountID, provider, info)
		case !errors.Is(err, repository.ErrIdentityNotFound):
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
	}

	identity := &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Provider:       provider,
		ProviderUserID: info.ProviderUserID,
		Profile:        info.Profile,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrIdentityTaken) {
			return s.holdLink(ctx, accountID, provider, info)
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("identity linked", "account_id", accountID, "provider", provider)
	s.events.PublishAsync(&model.AccountEvent{
		Type:      model.EventIdentityLinked,
		AccountID: accountID,
		Provider:  provider,
	})
	return &CallbackResult{Link: true, Linked: true}, nil
}

// holdLink parks an identity that collides with another account until the
// user merges or replaces that account.
func (s *AuthService) holdLink(ctx context.Context, accountID string, provider model.Provider, info *oauth.UserInfo) (*CallbackResult, error) {
	profile, err := model.MarshalProfile(info.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	link := &model.PendingLink{
		AccountID:      accountID,
		Provider:       provider,
		ProviderUserID: info.ProviderUserID,
		Email:          info.Email,
		ProfileData:    profile,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.pending.SavePendingLink(ctx, link, s.pendingLinkTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("identity link held for collision", "account_id", accountID, "provider", provider)
	return &CallbackResult{
		Link:      true,
		Collision: &LinkCollision{Provider: provider, Email: info.Email},
	}, nil
}

func (s *AuthService) signIn(ctx context.Context, accountID string, provider model.Provider) (*CallbackResult, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &model.Session{
		TokenHash: auth.QuickHash(token),
		AccountID: accountID,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &CallbackResult{Session: session, Token: token}, nil
}
