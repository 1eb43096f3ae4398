// Package coral obtains and renews Coral (NSO app) service credentials
// from a session token.
package coral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/session"
)

const (
	// ServiceName scopes storage keys and the rate-limit purpose
	ServiceName = "coral"

	// ClientID is the registered client the session token must be
	// issued for
	ClientID = "71b963c1b7b6d119"

	// Issuer is the account authority
	Issuer = "https://accounts.nintendo.com"

	// DefaultAddress is the Coral API endpoint
	DefaultAddress = "https://api-lp1.znc.srv.nintendo.net"

	loginPath = "/v3/Account/Login"
	renewPath = "/v3/Account/GetToken"

	// statusTokenExpired is the in-band status Coral uses for a
	// rejected service credential
	statusTokenExpired = 9404
)

// Payload is the Coral credential body kept in the cached set
type Payload struct {
	AccessToken string      `json:"access_token"`
	User        UserProfile `json:"user"`
}

// UserProfile is the subset of the Coral user record the CLI shows
type UserProfile struct {
	ID       string `json:"id"`
	NSAID    string `json:"nsa_id"`
	Name     string `json:"name"`
	ImageURI string `json:"image_uri"`
}

type loginRequest struct {
	SessionToken string `json:"session_token"`
	RequestID    string `json:"request_id"`
}

type loginResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error_message,omitempty"`
	Result struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   int64       `json:"expires_in"`
		User        UserProfile `json:"user"`
	} `json:"result"`
}

// Service implements credential.Service for Coral
type Service struct {
	credential.ServiceInfo
}

// New returns the Coral service descriptor. An empty address falls back
// to the production endpoint.
func New(address string) *Service {
	if address == "" {
		address = DefaultAddress
	}
	return &Service{
		ServiceInfo: credential.NewServiceInfo(ServiceName, ClientID, Issuer, ServiceName, address),
	}
}

// Authenticate performs the initial Coral login
func (s *Service) Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	return s.exchange(ctx, caller, loginPath, token)
}

// Renew exchanges the session token again through the renewal endpoint.
// Coral renewal needs no state from the prior set.
func (s *Service) Renew(ctx context.Context, caller api.Caller, token *session.Token, _ *credential.Set) (*credential.Issued, error) {
	return s.exchange(ctx, caller, renewPath, token)
}

func (s *Service) exchange(ctx context.Context, caller api.Caller, path string, token *session.Token) (*credential.Issued, error) {
	req := loginRequest{
		SessionToken: token.Raw,
		RequestID:    uuid.New().String(),
	}

	var resp loginResponse
	if err := caller.DoJSON(ctx, http.MethodPost, path, &req, &resp); err != nil {
		return nil, api.InterpretStatus(ServiceName, err)
	}

	// Coral reports failures in-band with a 200 status
	if resp.Status != 0 {
		if resp.Status == statusTokenExpired {
			return nil, &api.TokenExpiredError{Service: ServiceName, Message: resp.Error}
		}
		return nil, &api.AuthenticationError{Service: ServiceName, Message: fmt.Sprintf("status %d: %s", resp.Status, resp.Error)}
	}
	if resp.Result.AccessToken == "" {
		return nil, &api.AuthenticationError{Service: ServiceName, Message: "response contained no access token"}
	}

	payload, err := json.Marshal(Payload{
		AccessToken: resp.Result.AccessToken,
		User:        resp.Result.User,
	})
	if err != nil {
		return nil, fmt.Errorf("coral: failed to encode payload: %w", err)
	}

	return &credential.Issued{
		Payload:   payload,
		ExpiresIn: resp.Result.ExpiresIn,
		UserID:    resp.Result.User.ID,
	}, nil
}

// DecodePayload extracts the Coral payload from a cached set
func DecodePayload(set *credential.Set) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(set.Payload, &payload); err != nil {
		return nil, fmt.Errorf("coral: failed to decode cached payload: %w", err)
	}
	return &payload, nil
}
