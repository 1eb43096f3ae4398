// Package nooklink obtains and renews NookLink web credentials from a
// session token.
package nooklink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/session"
)

const (
	ServiceName = "nooklink"

	// NookLink credentials bootstrap from the Coral session token
	ClientID = "71b963c1b7b6d119"

	Issuer = "https://accounts.nintendo.com"

	DefaultAddress = "https://web.sd.lp1.acbaa.srv.nintendo.net"

	authTokenPath = "/api/sd/v1/auth_token"
)

// Payload is the NookLink credential body kept in the cached set
type Payload struct {
	Token string `json:"token"`
	// Users are the island residents selectable for this account
	Users []User `json:"users"`
}

// User is one NookLink-visible player record
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Island   string `json:"land_name"`
	ImageURI string `json:"image_uri"`
}

type authTokenRequest struct {
	SessionToken string `json:"session_token"`
}

type authTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	UserID    string `json:"user_id"`
	Users     []User `json:"users"`
}

// Service implements credential.Service for NookLink
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

// Authenticate obtains a fresh NookLink auth token
func (s *Service) Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	return s.exchange(ctx, caller, token)
}

// Renew replaces the auth token through the same endpoint
func (s *Service) Renew(ctx context.Context, caller api.Caller, token *session.Token, _ *credential.Set) (*credential.Issued, error) {
	return s.exchange(ctx, caller, token)
}

func (s *Service) exchange(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	req := authTokenRequest{SessionToken: token.Raw}

	var resp authTokenResponse
	if err := caller.DoJSON(ctx, http.MethodPost, authTokenPath, &req, &resp); err != nil {
		return nil, api.InterpretStatus(ServiceName, err, http.StatusUnauthorized)
	}
	if resp.Token == "" {
		return nil, &api.AuthenticationError{Service: ServiceName, Message: "response contained no auth token"}
	}

	payload, err := json.Marshal(Payload{
		Token: resp.Token,
		Users: resp.Users,
	})
	if err != nil {
		return nil, fmt.Errorf("nooklink: failed to encode payload: %w", err)
	}

	return &credential.Issued{
		Payload:   payload,
		ExpiresIn: resp.ExpiresIn,
		UserID:    resp.UserID,
	}, nil
}

// DecodePayload extracts the NookLink payload from a cached set
func DecodePayload(set *credential.Set) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(set.Payload, &payload); err != nil {
		return nil, fmt.Errorf("nooklink: failed to decode cached payload: %w", err)
	}
	return &payload, nil
}
