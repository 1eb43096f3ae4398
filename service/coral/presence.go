package coral

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stephnangue/nxauth/api"
)

const friendListPath = "/v3/Friend/List"

// Presence is one friend's presence state as Coral reports it
type Presence struct {
	NSAID    string `json:"nsa_id"`
	Name     string `json:"name"`
	State    string `json:"state"` // ONLINE, OFFLINE, PLAYING
	GameName string `json:"game_name,omitempty"`
	UpdatedAt int64 `json:"updated_at"`
}

type friendListResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error_message,omitempty"`
	Result struct {
		Friends []Presence `json:"friends"`
	} `json:"result"`
}

// Doer is the request surface FriendPresence needs. Both api.Caller and
// credential.ServiceClient satisfy it.
type Doer interface {
	DoJSON(ctx context.Context, method, path string, body, out interface{}) error
}

type friendListRequest struct {
	AccessToken string `json:"access_token"`
}

// FriendPresence fetches the friend presence list using a live Coral
// access token. A Coral rejection of the token surfaces as
// *api.TokenExpiredError so the caller's renewal wrapper can react.
func FriendPresence(ctx context.Context, doer Doer, accessToken string) ([]Presence, error) {
	req := friendListRequest{AccessToken: accessToken}

	var resp friendListResponse
	if err := doer.DoJSON(ctx, http.MethodPost, friendListPath, &req, &resp); err != nil {
		return nil, err
	}

	if resp.Status != 0 {
		if resp.Status == statusTokenExpired {
			return nil, &api.TokenExpiredError{Service: ServiceName, Message: resp.Error}
		}
		return nil, fmt.Errorf("coral: request failed with status %d: %s", resp.Status, resp.Error)
	}
	return resp.Result.Friends, nil
}
