/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package client is the player-side of the protocol: it composes the
// registry, presence, and a session-record subscription into the view
// a single player sees, and applies that player's actions back through
// guarded commits.
package client

import (
	"encoding/json"
	"sync"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/registry"
	"github.com/Seednode/rajarani/store"
)

// PlayerView is one roster entry as the local player sees it. Role
// labels are only revealed for the local player, for confirmed
// (locked) players, and for everyone once the session completes.
type PlayerView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsSelf        bool   `json:"isSelf"`
	IsHost        bool   `json:"isHost"`
	IsLocked      bool   `json:"isLocked"`
	IsCurrentTurn bool   `json:"isCurrentTurn"`
	RoleLabel     string `json:"roleLabel,omitempty"`
}

// View is the full player-visible projection of one session snapshot.
// State "waiting" means no session is loaded.
type View struct {
	State       string          `json:"state"`
	SessionID   string          `json:"sessionId,omitempty"`
	PlayerID    string          `json:"playerId,omitempty"`
	Players     []PlayerView    `json:"players,omitempty"`
	CurrentTurn string          `json:"currentTurn,omitempty"`
	SeekLabel   string          `json:"seekLabel,omitempty"`
	Standings   []game.Standing `json:"standings,omitempty"`
}

// StateWaiting is the client-local "no session loaded" phase; it is
// never persisted.
const StateWaiting = "waiting"

// Project derives the player-visible view from a session snapshot.
// The local player is reconciled by player id first and by durable
// user id as a fallback, which is what makes reconnect-after-refresh
// with a persisted (session id, player id) pair work even when the
// roster moved underneath it.
func Project(s *game.Session, playerID, userID string) View {
	if s == nil {
		return View{State: StateWaiting}
	}

	self := s.PlayerByID(playerID)
	if self == nil {
		self = s.PlayerByUserID(userID)
	}

	view := View{
		State:     string(s.State),
		SessionID: s.ID,
	}
	if self != nil {
		view.PlayerID = self.ID
	}

	completed := s.State == game.StateCompleted
	for _, p := range s.Players {
		pv := PlayerView{
			ID:            p.ID,
			Name:          p.Name,
			IsSelf:        self != nil && p.ID == self.ID,
			IsHost:        p.IsHost,
			IsLocked:      p.IsLocked,
			IsCurrentTurn: p.IsCurrentTurn,
		}
		if p.Role != nil && (pv.IsSelf || p.IsLocked || completed) {
			pv.RoleLabel = s.Label(*p.Role)
		}
		view.Players = append(view.Players, pv)
		if p.IsCurrentTurn {
			view.CurrentTurn = p.ID
		}
	}

	if self != nil && self.IsCurrentTurn && self.Role != nil && s.State == game.StatePlaying {
		if sought, ok := self.Role.Next(); ok {
			view.SeekLabel = s.Label(sought)
		}
	}

	if completed {
		view.Standings = game.Rankings(s)
	}

	return view
}

// Projector subscribes to one session record and re-derives the local
// view on every committed change. A nil snapshot (record removed)
// is surfaced through onGone: the session no longer exists.
type Projector struct {
	sessionID string
	playerID  string
	userID    string

	onView func(View)
	onGone func()

	mu      sync.Mutex
	last    *game.Session
	cancel  func()
	stopped bool
}

// NewProjector starts projecting games/{sessionID} for the given
// player. onView receives every derived view in commit order; onGone
// fires once if the record disappears.
func NewProjector(conn *store.Conn, sessionID, playerID, userID string, onView func(View), onGone func()) *Projector {
	p := &Projector{
		sessionID: sessionID,
		playerID:  playerID,
		userID:    userID,
		onView:    onView,
		onGone:    onGone,
	}
	p.cancel = conn.Subscribe(registry.SessionPath(sessionID), p.onEvent)
	return p
}

func (p *Projector) onEvent(ev store.Event) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	if ev.Data == nil {
		p.last = nil
		p.stopped = true
		p.mu.Unlock()
		p.onGone()
		return
	}

	var session game.Session
	if err := json.Unmarshal(ev.Data, &session); err != nil {
		p.mu.Unlock()
		return
	}
	p.last = &session
	p.mu.Unlock()

	p.onView(Project(&session, p.playerID, p.userID))
}

// Snapshot returns the last decoded session, or nil.
func (p *Projector) Snapshot() *game.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Prime seeds the projector (and emits a view) from a session already
// in hand, typically the one returned by create or join.
func (p *Projector) Prime(s *game.Session) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.last = s
	p.mu.Unlock()
	p.onView(Project(s, p.playerID, p.userID))
}

// Stop cancels the subscription.
func (p *Projector) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
}
