package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
)

var (
	// ErrNoAccount means the identity cache holds no account to refresh silently.
	ErrNoAccount = errors.New("no cached account")
	// ErrNoPresenter means interactive sign-in has nowhere to show itself.
	ErrNoPresenter = errors.New("no interactive presentation context")
)

// Token is a bearer token and its expiry.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// Identity is the identity SDK as seen by the provider.
type Identity interface {
	// Silent returns a token from cache or refresh, or ErrNoAccount.
	Silent(ctx context.Context) (Token, error)
	// Interactive runs one visible sign-in through presenter.
	Interactive(ctx context.Context, presenter Presenter) (Token, error)
}

type flightResult struct {
	token Token
	err   error
}

// Provider hands out bearer tokens. Concurrent interactive sign-ins are
// coalesced into one flow whose outcome is broadcast to every waiter.
type Provider struct {
	clientID    string
	identity    Identity
	presenter   Presenter
	flowTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	inProgress bool
	waiters    []chan flightResult

	flows atomic.Int64
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithPresenter sets where interactive sign-in is shown.
func WithPresenter(p Presenter) ProviderOption {
	return func(pr *Provider) {
		if p != nil {
			pr.presenter = p
		}
	}
}

// WithFlowTimeout bounds one interactive sign-in.
func WithFlowTimeout(d time.Duration) ProviderOption {
	return func(pr *Provider) {
		if d > 0 {
			pr.flowTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(pr *Provider) { pr.logger = logging.NewComponentLogger(logger, "auth") }
}

// NewProvider builds a Provider. An empty clientID makes every request fail
// with a configuration error without touching identity.
func NewProvider(clientID string, identity Identity, opts ...ProviderOption) *Provider {
	p := &Provider{
		clientID:    strings.TrimSpace(clientID),
		identity:    identity,
		presenter:   NonePresenter{},
		flowTimeout: 5 * time.Minute,
		logger:      logging.NewComponentLogger(nil, "auth"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a bearer token string.
func (p *Provider) Token(ctx context.Context) (string, error) {
	tok, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Acquire returns a token, silently when possible.
func (p *Provider) Acquire(ctx context.Context) (Token, error) {
	if p.clientID == "" || p.identity == nil {
		cause := services.Wrap(services.ErrConfiguration, "token", "configure", "auth.client_id is not set", nil)
		return Token{}, services.Wrap(services.ErrAuthentication, "token", "acquire", "", cause)
	}

	tok, err := p.identity.Silent(ctx)
	if err == nil {
		return tok, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Token{}, ctxErr
	}
	if !errors.Is(err, ErrNoAccount) {
		p.logger.Debug("silent token acquisition failed; trying interactive", logging.Error(err))
	}
	return p.interactive(ctx)
}

func (p *Provider) interactive(ctx context.Context) (Token, error) {
	ch := make(chan flightResult, 1)

	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	switch {
	case p.inProgress:
		p.mu.Unlock()
	case !p.presenter.Available():
		p.broadcastLocked(flightResult{err: services.Wrap(services.ErrAuthentication, "token", "interactive", "", ErrNoPresenter)})
		p.mu.Unlock()
	default:
		p.inProgress = true
		p.mu.Unlock()
		p.flows.Add(1)
		flowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flowTimeout)
		go func() {
			defer cancel()
			p.runFlow(flowCtx)
		}()
	}

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

func (p *Provider) runFlow(ctx context.Context) {
	p.logger.Info("interactive sign-in started", logging.String(logging.FieldEventType, "auth_interactive_started"))
	tok, err := p.identity.Interactive(ctx, p.presenter)
	res := flightResult{token: tok}
	if err != nil {
		res.err = services.Wrap(services.ErrAuthentication, "token", "interactive", "", err)
		logging.WarnWithContext(p.logger, "interactive sign-in failed", "auth_interactive_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "waiting jobs fail and move to Failed"),
			logging.String(logging.FieldErrorHint, "run `sendtoonenote login` from a terminal"),
		)
	}

	p.mu.Lock()
	p.broadcastLocked(res)
	p.mu.Unlock()
}

// broadcastLocked releases every waiter in arrival order with res, then
// clears the in-progress flag and resets the list. Callers hold p.mu.
func (p *Provider) broadcastLocked(res flightResult) {
	for _, w := range p.waiters {
		w <- res
	}
	p.inProgress = false
	p.waiters = nil
}

// PendingWaiters returns how many requests wait on the current sign-in.
func (p *Provider) PendingWaiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// InteractiveFlows returns how many interactive sign-ins were started.
func (p *Provider) InteractiveFlows() int64 {
	return p.flows.Load()
}
