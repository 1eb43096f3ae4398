// Package moon obtains and renews Parental Controls (Moon) service
// credentials from a session token.
package moon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/session"
)

const (
	ServiceName = "moon"

	// ClientID is the Parental Controls app's registered client
	ClientID = "54789befb391a838"

	Issuer = "https://accounts.nintendo.com"

	DefaultAddress = "https://api-lp1.pctl.srv.nintendo.net"

	tokenPath = "/moon/v1/api/tokens"

	// Moon signals a rejected credential with a plain 401 carrying this
	// machine-readable code
	codeTokenExpired = "token.expired"
)

// Payload is the Moon credential body kept in the cached set
type Payload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"account_id"`
}

type tokenRequest struct {
	SessionToken string `json:"session_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	AccountID    string `json:"account_id"`
}

type errorBody struct {
	Code    string `json:"errorCode"`
	Message string `json:"message"`
}

// Service implements credential.Service for Moon
type Service struct {
	credential.ServiceInfo
}

func New(address string) *Service {
	if address == "" {
		address = DefaultAddress
	}
	return &Service{
		ServiceInfo: credential.NewServiceInfo(ServiceName, ClientID, Issuer, ServiceName, address),
	}
}

// Authenticate performs the initial Moon token exchange
func (s *Service) Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	return s.exchange(ctx, caller, token, "")
}

// Renew re-runs the exchange carrying the refresh token from the prior
// set when one is available
func (s *Service) Renew(ctx context.Context, caller api.Caller, token *session.Token, prior *credential.Set) (*credential.Issued, error) {
	refresh := ""
	if prior != nil {
		if payload, err := DecodePayload(prior); err == nil {
			refresh = payload.RefreshToken
		}
	}
	return s.exchange(ctx, caller, token, refresh)
}

func (s *Service) exchange(ctx context.Context, caller api.Caller, token *session.Token, refreshToken string) (*credential.Issued, error) {
	req := tokenRequest{
		SessionToken: token.Raw,
		RefreshToken: refreshToken,
	}

	var resp tokenResponse
	if err := caller.DoJSON(ctx, http.MethodPost, tokenPath, &req, &resp); err != nil {
		return nil, interpretError(err)
	}
	if resp.AccessToken == "" {
		return nil, &api.AuthenticationError{Service: ServiceName, Message: "response contained no access token"}
	}

	payload, err := json.Marshal(Payload{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		AccountID:    resp.AccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("moon: failed to encode payload: %w", err)
	}

	return &credential.Issued{
		Payload:   payload,
		ExpiresIn: resp.ExpiresIn,
		UserID:    resp.AccountID,
	}, nil
}

// interpretError inspects a 401 body for Moon's expired-token code
// before falling back to the generic mapping
func interpretError(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		var body errorBody
		if json.Unmarshal(statusErr.Body, &body) == nil && body.Code == codeTokenExpired {
			return &api.TokenExpiredError{Service: ServiceName, Message: body.Message}
		}
	}
	return api.InterpretStatus(ServiceName, err)
}

// DecodePayload extracts the Moon payload from a cached set
func DecodePayload(set *credential.Set) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(set.Payload, &payload); err != nil {
		return nil, fmt.Errorf("moon: failed to decode cached payload: %w", err)
	}
	return &payload, nil
}
