package auth

import (
	"context"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// Settings configures the MSAL public client.
type Settings struct {
	ClientID    string
	Authority   string
	RedirectURI string
	Scopes      []string
}

// MSALIdentity implements Identity with the Microsoft identity SDK.
type MSALIdentity struct {
	client      public.Client
	scopes      []string
	redirectURI string
}

// NewMSALIdentity constructs the public client. store persists the SDK's
// account cache and may be nil.
func NewMSALIdentity(settings Settings, store cache.ExportReplace) (*MSALIdentity, error) {
	opts := []public.Option{public.WithAuthority(settings.Authority)}
	if store != nil {
		opts = append(opts, public.WithCache(store))
	}
	client, err := public.New(settings.ClientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create identity client: %w", err)
	}
	return &MSALIdentity{client: client, scopes: settings.Scopes, redirectURI: settings.RedirectURI}, nil
}

func (m *MSALIdentity) Silent(ctx context.Context) (Token, error) {
	accounts, err := m.client.Accounts(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Token{}, ErrNoAccount
	}
	result, err := m.client.AcquireTokenSilent(ctx, m.scopes, public.WithSilentAccount(accounts[0]))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: result.AccessToken, ExpiresOn: result.ExpiresOn}, nil
}

func (m *MSALIdentity) Interactive(ctx context.Context, presenter Presenter) (Token, error) {
	result, err := m.client.AcquireTokenInteractive(ctx, m.scopes,
		public.WithRedirectURI(m.redirectURI),
		public.WithOpenURL(presenter.OpenURL),
	)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: result.AccessToken, ExpiresOn: result.ExpiresOn}, nil
}

// Accounts returns the usernames held in the identity cache.
func (m *MSALIdentity) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := m.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for _, account := range accounts {
		names = append(names, account.PreferredUsername)
	}
	return names, nil
}
