package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/session"
)

// Renewer renews one (service, session token) credential set when a
// service rejects it mid-use. It is injected into the ServiceClient at
// construction; there is no mutable post-construction hook. Renewal
// counts as an authentication attempt and goes through the same rate
// limit as a login.
//
// The renewer tracks the latest set it produced, so a second expiry
// after a renewal renews from the new state rather than the one
// captured when the client was built.
type Renewer struct {
	m     *Manager
	svc   Service
	token *session.Token
	opts  GetTokenOptions

	mu      sync.Mutex
	current *Set
}

// NewRenewer builds a renewal strategy for the given set
func (m *Manager) NewRenewer(svc Service, token *session.Token, opts GetTokenOptions, current *Set) *Renewer {
	return &Renewer{
		m:       m,
		svc:     svc,
		token:   token,
		opts:    opts,
		current: current,
	}
}

// Current returns the set the renewer currently considers live
func (r *Renewer) Current() *Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Renew runs the service's renewal flow and replaces the persisted set.
// It repairs the credential for future calls only; replaying whatever
// request hit the expiry is the caller's responsibility.
func (r *Renewer) Renew(ctx context.Context) (*Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.m
	ctx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()

	if err := m.limiter.Check(ctx, m.store, r.svc.RatePurpose(), r.token.Subject, r.opts.RateLimit); err != nil {
		return nil, err
	}

	caller, err := api.NewAuthClient(m.clientConfig, r.svc.DirectAddress(), r.opts.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build client for %s: %w", r.svc.Name(), err)
	}

	issued, err := r.svc.Renew(ctx, caller, r.token, r.current)
	if err != nil {
		return nil, err
	}

	key := cacheKey(r.svc, r.token, r.opts.ProxyURL)
	set, err := m.storeIssued(ctx, r.svc, r.token, key, r.opts.ProxyURL, issued)
	if err != nil {
		return nil, err
	}

	r.current = set

	m.log.Info("service credentials renewed after expiry",
		logger.String("service", r.svc.Name()),
		logger.String("user_id", set.UserID),
		logger.Time("expires_at", time.UnixMilli(set.ExpiresAt)))

	return set, nil
}
