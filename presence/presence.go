/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package presence keeps per-player liveness records in the store and
// watches peers for disconnects. A player's record is written on join,
// refreshed on a short fixed interval, and removed either explicitly
// or by the store's on-disconnect hook; its absence for a player still
// on the roster is the disconnect signal.
package presence

import (
	"context"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/store"
)

// DefaultInterval is the presence refresh cadence.
const DefaultInterval = 15 * time.Second

// Path returns the store path of one session-player presence record.
func Path(sessionID, playerID string) string {
	return "presence/" + sessionID + "/" + playerID
}

// SessionPrefix returns the presence sub-tree of a session.
func SessionPrefix(sessionID string) string {
	return "presence/" + sessionID
}

// Record is the ephemeral liveness marker.
type Record struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
}

// Heartbeat owns one player's presence record: it arms the
// on-disconnect hook and rewrites the record every interval to keep a
// visible pulse for monitoring peers.
type Heartbeat struct {
	conn      *store.Conn
	path      string
	id        identity.Identity
	interval  time.Duration
	logf      func(string, ...any)
	cancel    context.CancelFunc
	done      chan struct{}
}

// StartHeartbeat writes the initial record, arms cleanup, and starts
// the refresh loop. Individual refresh failures are logged and the
// loop continues on the next tick.
func StartHeartbeat(ctx context.Context, conn *store.Conn, sessionID, playerID string, id identity.Identity, interval time.Duration, logf func(string, ...any)) (*Heartbeat, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	hb := &Heartbeat{
		conn:     conn,
		path:     Path(sessionID, playerID),
		id:       id,
		interval: interval,
		logf:     logf,
		done:     make(chan struct{}),
	}

	if err := hb.write(ctx); err != nil {
		return nil, err
	}
	conn.OnDisconnectRemove(hb.path)

	ctx, hb.cancel = context.WithCancel(ctx)
	go hb.loop(ctx)

	return hb, nil
}

func (hb *Heartbeat) write(ctx context.Context) error {
	return hb.conn.Apply(ctx, nil, store.Op{
		Path: hb.path,
		Value: Record{
			Online:   true,
			LastSeen: time.Now(),
			UserID:   hb.id.UserID,
			Name:     hb.id.Name,
		},
	})
}

func (hb *Heartbeat) loop(ctx context.Context) {
	defer close(hb.done)

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := hb.write(ctx); err != nil && hb.logf != nil {
				hb.logf("PRESENCE: refresh failed: %v", err)
			}
		}
	}
}

// Stop ends the refresh loop, removes the record, and disarms the
// on-disconnect hook. Safe to call after the connection closed.
func (hb *Heartbeat) Stop() {
	hb.cancel()
	<-hb.done
	hb.conn.CancelOnDisconnect(hb.path)
	_ = hb.conn.Apply(context.Background(), nil, store.Remove(hb.path))
}

// Monitor watches a session's presence sub-tree and reports peers that
// vanish. A roster member counts as disconnected only after their
// presence was actually observed once; a fresh joiner whose record
// has not landed yet never triggers a spurious interruption.
type Monitor struct {
	conn   *store.Conn
	prefix string
	selfID string

	roster func() ([]game.Player, game.State)
	onGone func(names []string)

	seen   map[string]bool
	cancel func()
}

// Watch subscribes to the session's presence sub-tree. roster supplies
// the latest known player list and phase; onGone is called with the
// display names of disconnected peers (at most once per missing set)
// whenever the phase is playing.
func Watch(conn *store.Conn, sessionID, selfPlayerID string, roster func() ([]game.Player, game.State), onGone func(names []string)) *Monitor {
	m := &Monitor{
		conn:   conn,
		prefix: SessionPrefix(sessionID),
		selfID: selfPlayerID,
		roster: roster,
		onGone: onGone,
		seen:   make(map[string]bool),
	}
	m.cancel = conn.Subscribe(m.prefix, m.onEvent)
	return m
}

// onEvent runs on the subscription goroutine, so reads of m.seen are
// already serialized.
func (m *Monitor) onEvent(store.Event) {
	live, err := m.conn.List(context.Background(), m.prefix)
	if err != nil {
		return
	}

	present := make(map[string]bool, len(live))
	for path := range live {
		present[path[len(m.prefix)+1:]] = true
	}
	for id := range present {
		m.seen[id] = true
	}

	players, state := m.roster()
	if state != game.StatePlaying {
		return
	}

	var gone []string
	for _, p := range players {
		if p.ID == m.selfID {
			continue
		}
		if m.seen[p.ID] && !present[p.ID] {
			gone = append(gone, p.Name)
		}
	}
	if len(gone) > 0 {
		// Forget the missing peers so the notice fires once.
		for _, p := range players {
			if !present[p.ID] {
				delete(m.seen, p.ID)
			}
		}
		m.onGone(gone)
	}
}

// Stop cancels the subscription.
func (m *Monitor) Stop() {
	m.cancel()
}
