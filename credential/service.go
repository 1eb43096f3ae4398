package credential

import (
	"context"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/session"
)

// Service describes one remote service the manager can obtain
// credentials for. Implementations live under service/, one package
// per service (coral, moon, splatnet2, splatnet3, nooklink).
type Service interface {
	// Name is the storage and cache scope for this service
	Name() string

	// ClientID is the registered client identifier session tokens must
	// be issued for (the token's audience claim)
	ClientID() string

	// Issuer is the account authority expected in the token's iss claim
	Issuer() string

	// RatePurpose scopes the rate limiter's attempt log
	RatePurpose() string

	// DirectAddress is the service endpoint used when no gateway proxy
	// is configured
	DirectAddress() string

	// Authenticate performs the initial login flow with the session
	// token and returns the issued credential payload
	Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*Issued, error)

	// Renew performs the token-renewal flow. It uses the same session
	// token but a distinct endpoint, and receives the prior set so
	// services that need refresh metadata can carry it over.
	Renew(ctx context.Context, caller api.Caller, token *session.Token, prior *Set) (*Issued, error)
}

// ServiceInfo carries the static identity of a service and provides the
// descriptor getters, so service packages only implement the two flows
type ServiceInfo struct {
	name     string
	clientID string
	issuer   string
	purpose  string
	address  string
}

// NewServiceInfo builds the identity block service packages embed
func NewServiceInfo(name, clientID, issuer, purpose, address string) ServiceInfo {
	return ServiceInfo{
		name:     name,
		clientID: clientID,
		issuer:   issuer,
		purpose:  purpose,
		address:  address,
	}
}

func (i ServiceInfo) Name() string          { return i.name }
func (i ServiceInfo) ClientID() string      { return i.clientID }
func (i ServiceInfo) Issuer() string        { return i.issuer }
func (i ServiceInfo) RatePurpose() string   { return i.purpose }
func (i ServiceInfo) DirectAddress() string { return i.address }

// Expectation builds the session-token expectation for a service
func Expectation(svc Service) session.Expectation {
	return session.Expectation{
		Issuer:   svc.Issuer(),
		ClientID: svc.ClientID(),
	}
}
