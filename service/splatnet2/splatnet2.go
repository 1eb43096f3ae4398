// Package splatnet2 obtains and renews SplatNet 2 web credentials
// (iksm session) from a session token.
package splatnet2

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
	ServiceName = "splatnet2"

	// SplatNet 2 credentials bootstrap from the Coral session token
	ClientID = "71b963c1b7b6d119"

	Issuer = "https://accounts.nintendo.com"

	DefaultAddress = "https://app.splatoon2.nintendo.net"

	sessionPath = "/api/session"
)

// Payload is the SplatNet 2 credential body kept in the cached set
type Payload struct {
	IksmSession string `json:"iksm_session"`
	UniqueID    string `json:"unique_id"`
}

type sessionRequest struct {
	SessionToken string `json:"session_token"`
}

type sessionResponse struct {
	IksmSession string `json:"iksm_session"`
	UniqueID    string `json:"unique_id"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      string `json:"user_id"`
}

// Service implements credential.Service for SplatNet 2
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

// Authenticate obtains a fresh iksm session
func (s *Service) Authenticate(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	return s.exchange(ctx, caller, token)
}

// Renew is the same exchange; SplatNet 2 has no separate renewal flow,
// an expired iksm session is simply replaced
func (s *Service) Renew(ctx context.Context, caller api.Caller, token *session.Token, _ *credential.Set) (*credential.Issued, error) {
	return s.exchange(ctx, caller, token)
}

func (s *Service) exchange(ctx context.Context, caller api.Caller, token *session.Token) (*credential.Issued, error) {
	req := sessionRequest{SessionToken: token.Raw}

	var resp sessionResponse
	if err := caller.DoJSON(ctx, http.MethodPost, sessionPath, &req, &resp); err != nil {
		// SplatNet 2 signals an expired credential with a bare 403
		return nil, api.InterpretStatus(ServiceName, err, http.StatusForbidden)
	}
	if resp.IksmSession == "" {
		return nil, &api.AuthenticationError{Service: ServiceName, Message: "response contained no iksm session"}
	}

	payload, err := json.Marshal(Payload{
		IksmSession: resp.IksmSession,
		UniqueID:    resp.UniqueID,
	})
	if err != nil {
		return nil, fmt.Errorf("splatnet2: failed to encode payload: %w", err)
	}

	return &credential.Issued{
		Payload:   payload,
		ExpiresIn: resp.ExpiresIn,
		UserID:    resp.UserID,
	}, nil
}

// DecodePayload extracts the SplatNet 2 payload from a cached set
func DecodePayload(set *credential.Set) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(set.Payload, &payload); err != nil {
		return nil, fmt.Errorf("splatnet2: failed to decode cached payload: %w", err)
	}
	return &payload, nil
}
