// Package monitor runs background polling of remote per-user state,
// driven by the loop package.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid"

	"github.com/stephnangue/nxauth/api"
	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/logger"
	"github.com/stephnangue/nxauth/loop"
	"github.com/stephnangue/nxauth/service/coral"
	"github.com/stephnangue/nxauth/session"
	"github.com/stephnangue/nxauth/storage"
)

// DefaultInterval is the presence polling cadence
const DefaultInterval = 60 * time.Second

// Snapshot is the persisted presence state for one user
type Snapshot struct {
	UserID    string           `json:"user_id"`
	Friends   []coral.Presence `json:"friends"`
	FetchedAt int64            `json:"fetched_at"` // epoch ms
}

// Record is one observed presence change, persisted append-only
type Record struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	NSAID    string `json:"nsa_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	GameName string `json:"game_name,omitempty"`
	SeenAt   int64  `json:"seen_at"` // epoch ms
}

// PresenceMonitor polls friend presence for one user each tick and
// persists the snapshot plus change records. Credential upkeep is the
// credential manager's concern: each tick resolves the set through the
// cache, and mid-flight expiry signals repair it for the next tick.
type PresenceMonitor struct {
	loop.Base

	manager *credential.Manager
	svc     credential.Service
	token   *session.Token
	opts    credential.GetTokenOptions
	store   storage.Storage
	log     logger.Logger

	entropy *rand.Rand

	// lastStates tracks the previous tick's state per friend so only
	// changes produce records
	lastStates map[string]string
}

// NewPresenceMonitor builds the updater for one user's presence
func NewPresenceMonitor(manager *credential.Manager, svc credential.Service, token *session.Token, opts credential.GetTokenOptions, store storage.Storage, log logger.Logger) *PresenceMonitor {
	return &PresenceMonitor{
		manager:    manager,
		svc:        svc,
		token:      token,
		opts:       opts,
		store:      store,
		log:        log,
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
		lastStates: make(map[string]string),
	}
}

// Update fetches presence once and persists what changed
func (p *PresenceMonitor) Update(ctx context.Context) error {
	client, result, err := p.manager.Client(ctx, p.svc, p.token, p.opts)
	if err != nil {
		return err
	}

	payload, err := coral.DecodePayload(result.Set)
	if err != nil {
		return err
	}

	friends, err := coral.FriendPresence(ctx, client, payload.AccessToken)
	if err != nil {
		return err
	}

	now := time.Now()
	snapshot := Snapshot{
		UserID:    result.Set.UserID,
		Friends:   friends,
		FetchedAt: now.UnixMilli(),
	}
	if err := storage.SetJSON(ctx, p.store, storage.PresenceKey(result.Set.UserID), &snapshot); err != nil {
		return fmt.Errorf("failed to persist presence snapshot: %w", err)
	}

	for _, friend := range friends {
		if p.lastStates[friend.NSAID] == friend.State {
			continue
		}
		p.lastStates[friend.NSAID] = friend.State

		record := Record{
			ID:       ulid.MustNew(ulid.Timestamp(now), p.entropy).String(),
			UserID:   result.Set.UserID,
			NSAID:    friend.NSAID,
			Name:     friend.Name,
			State:    friend.State,
			GameName: friend.GameName,
			SeenAt:   now.UnixMilli(),
		}
		if err := storage.SetJSON(ctx, p.store, storage.PresenceRecordKey(record.ID), &record); err != nil {
			return fmt.Errorf("failed to persist presence record: %w", err)
		}
		p.log.Debug("presence change recorded",
			logger.String("friend", friend.Name),
			logger.String("state", friend.State))
	}

	return nil
}

// HandleError keeps the loop alive through temporary conditions: network
// and gateway trouble retries at the normal interval, and a mid-flight
// credential expiry retries too since the failing tick already repaired
// the set for the next one. Everything else stops the monitor.
func (p *PresenceMonitor) HandleError(err error) (loop.Result, error) {
	if api.IsTransient(err) || errors.Is(err, api.ErrTokenExpired) {
		return loop.OK, nil
	}
	return loop.OK, err
}
