/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/presence"
	"github.com/Seednode/rajarani/registry"
	"github.com/Seednode/rajarani/store"
)

// Event kinds pushed to the event channel.
const (
	EventView        = "view"
	EventInterrupted = "interrupted"
	EventQueued      = "queued"
	EventMatched     = "matched"
)

// Event is one asynchronous notification for the local player.
type Event struct {
	Kind    string   `json:"kind"`
	View    *View    `json:"view,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Gone    []string `json:"gone,omitempty"`
	QueueID string   `json:"queueId,omitempty"`
}

// Client drives the protocol for one player over one store
// connection: session actions through the registry, liveness through
// presence, and the derived view through a projector.
type Client struct {
	conn     *store.Conn
	reg      *registry.Registry
	mm       *registry.Matchmaker
	id       identity.Identity
	interval time.Duration
	logf     func(string, ...any)
	events   chan Event

	mu        sync.Mutex
	sessionID string
	playerID  string
	hb        *presence.Heartbeat
	mon       *presence.Monitor
	proj      *Projector
	leaving   bool
	closed    bool

	queueID     string
	memberID    string
	queueCancel context.CancelFunc
}

// New builds a client for one authenticated player. queueWindow is the
// matchmaking staleness window; interval the presence refresh cadence.
func New(conn *store.Conn, id identity.Identity, interval, queueWindow time.Duration, logf func(string, ...any)) *Client {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Client{
		conn:     conn,
		reg:      registry.New(conn),
		mm:       registry.NewMatchmaker(conn, queueWindow),
		id:       id,
		interval: interval,
		logf:     logf,
		events:   make(chan Event, 16),
	}
}

// Events returns the notification channel. Slow consumers lose
// intermediate views, never the channel itself.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SessionID returns the currently attached session code, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Create makes a new session with this player as host.
func (c *Client) Create(ctx context.Context, name string) error {
	session, playerID, err := c.reg.Create(ctx, name, c.id)
	if err != nil {
		return err
	}
	return c.attach(ctx, session, playerID)
}

// Join enters an existing session by code.
func (c *Client) Join(ctx context.Context, code, name string) error {
	session, playerID, err := c.reg.Join(ctx, code, name, c.id)
	if err != nil {
		return err
	}
	return c.attach(ctx, session, playerID)
}

// Resume re-attaches after a refresh using a persisted session and
// player id pair. The projection reconciles the pair against the
// latest roster; a stale player id falls back to the durable identity.
func (c *Client) Resume(ctx context.Context, code, playerID string) error {
	session, _, err := c.reg.Get(ctx, code)
	if err != nil {
		return err
	}
	if p := session.PlayerByID(playerID); p == nil || p.UserID != c.id.UserID {
		if p := session.PlayerByUserID(c.id.UserID); p != nil {
			playerID = p.ID
		} else {
			return registry.ErrNotFound
		}
	}
	return c.attach(ctx, session, playerID)
}

// QuickPlay joins the best matchmaking queue and watches it until six
// active members promote it into a session.
func (c *Client) QuickPlay(ctx context.Context, name string) error {
	queueID, memberID, err := c.mm.JoinQueue(ctx, name, c.id)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.queueID = queueID
	c.memberID = memberID
	c.queueCancel = cancel
	c.mu.Unlock()

	c.emit(Event{Kind: EventQueued, QueueID: queueID})
	go c.watchQueue(ctx, watchCtx, queueID, memberID)
	return nil
}

// watchQueue refreshes this member's timestamp and attempts promotion
// whenever the queue changes or the refresh ticker fires. The watch
// context is released on match; the session attaches under the parent
// so the heartbeat outlives the queue watch.
func (c *Client) watchQueue(parent, ctx context.Context, queueID, memberID string) {
	kick := make(chan struct{}, 1)
	cancel := c.conn.Subscribe(registry.QueuePath(queueID), func(store.Event) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer cancel()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.mm.Refresh(ctx, queueID, memberID); err != nil && !errors.Is(err, registry.ErrNotFound) {
				c.logf("QUEUE: refresh failed: %v", err)
			}
		case <-kick:
		}

		sessionID, playerID, matched, err := c.mm.Promote(ctx, queueID, memberID)
		if err != nil {
			if ctx.Err() == nil {
				c.logf("QUEUE: promote failed: %v", err)
			}
			continue
		}
		if !matched {
			continue
		}

		session, _, err := c.reg.Get(ctx, sessionID)
		if err != nil {
			c.logf("QUEUE: read matched session: %v", err)
			return
		}

		c.mu.Lock()
		release := c.queueCancel
		c.queueID = ""
		c.memberID = ""
		c.queueCancel = nil
		c.mu.Unlock()
		if release != nil {
			release()
		}

		c.emit(Event{Kind: EventMatched, QueueID: queueID})
		if err := c.attach(parent, session, playerID); err != nil {
			c.logf("QUEUE: attach matched session: %v", err)
		}
		return
	}
}

// Start begins the game; host only, six players required.
func (c *Client) Start(ctx context.Context, labelScheme string, roleNames map[string]string) error {
	c.mu.Lock()
	sessionID, playerID := c.sessionID, c.playerID
	c.mu.Unlock()
	if sessionID == "" {
		return registry.ErrNotFound
	}
	_, err := c.reg.Start(ctx, sessionID, playerID, labelScheme, roleNames)
	return err
}

// Guess submits a guess against the target player.
func (c *Client) Guess(ctx context.Context, targetID string) (game.Outcome, error) {
	c.mu.Lock()
	sessionID, playerID := c.sessionID, c.playerID
	c.mu.Unlock()
	if sessionID == "" {
		return game.Outcome{}, registry.ErrNotFound
	}
	_, outcome, err := c.reg.Guess(ctx, sessionID, playerID, targetID)
	return outcome, err
}

// Leave voluntarily detaches from the current session or queue. Peers
// observe the presence record vanish and apply the interruption policy
// themselves if a game was running.
func (c *Client) Leave(ctx context.Context) {
	c.mu.Lock()
	sessionID := c.sessionID
	queueID, memberID := c.queueID, c.memberID
	cancel := c.queueCancel
	c.leaving = true
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queueID != "" {
		if err := c.mm.LeaveQueue(ctx, queueID, memberID); err != nil {
			c.logf("QUEUE: leave failed: %v", err)
		}
	}

	c.detach()

	if sessionID != "" {
		if err := c.reg.Leave(ctx, sessionID, c.id); err != nil {
			c.logf("GAMES: leave cleanup failed: %v", err)
		}
	}

	c.mu.Lock()
	c.leaving = false
	c.mu.Unlock()
}

// Close tears the client down and closes the event channel. Closing
// the store connection fires the on-disconnect hooks, so an abrupt
// close still cleans up presence.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cancel := c.queueCancel
	c.leaving = true
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.detach()
	c.conn.Close()

	c.mu.Lock()
	c.closed = true
	close(c.events)
	c.mu.Unlock()
}

// attach wires heartbeat, monitor, and projector for a joined session.
func (c *Client) attach(ctx context.Context, session *game.Session, playerID string) error {
	c.detach()

	hb, err := presence.StartHeartbeat(ctx, c.conn, session.ID, playerID, c.id, c.interval, c.logf)
	if err != nil {
		return err
	}

	proj := NewProjector(c.conn, session.ID, playerID, c.id.UserID, c.onView, c.onSessionGone)
	mon := presence.Watch(c.conn, session.ID, playerID, c.roster, c.onPeersGone)

	c.mu.Lock()
	c.sessionID = session.ID
	c.playerID = playerID
	c.hb = hb
	c.proj = proj
	c.mon = mon
	c.mu.Unlock()

	proj.Prime(session)
	return nil
}

// detach stops session-bound loops and clears local session state.
func (c *Client) detach() {
	c.mu.Lock()
	hb, mon, proj := c.hb, c.mon, c.proj
	c.hb, c.mon, c.proj = nil, nil, nil
	c.sessionID = ""
	c.playerID = ""
	c.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
	if proj != nil {
		proj.Stop()
	}
	if hb != nil {
		hb.Stop()
	}
}

// roster feeds the presence monitor from the latest projected snapshot.
func (c *Client) roster() ([]game.Player, game.State) {
	c.mu.Lock()
	proj := c.proj
	c.mu.Unlock()
	if proj == nil {
		return nil, game.StateLobby
	}
	snap := proj.Snapshot()
	if snap == nil {
		return nil, game.StateLobby
	}
	return snap.Players, snap.State
}

func (c *Client) onView(v View) {
	c.emit(Event{Kind: EventView, View: &v})
}

// onPeersGone applies the interruption policy: tear down local state,
// surface the notice, and, for the host, delete the session record so
// the remaining peers interrupt too. First host to observe wins.
func (c *Client) onPeersGone(names []string) {
	c.mu.Lock()
	sessionID, playerID := c.sessionID, c.playerID
	proj := c.proj
	c.mu.Unlock()
	if sessionID == "" {
		return
	}

	isHost := false
	if proj != nil {
		if snap := proj.Snapshot(); snap != nil {
			isHost = snap.HostID == playerID
		}
	}

	c.mu.Lock()
	c.leaving = true
	c.mu.Unlock()
	c.detach()

	if isHost {
		if err := c.reg.Teardown(context.Background(), sessionID, c.id); err != nil {
			c.logf("GAMES: interruption teardown failed: %v", err)
		}
	}
	_ = c.reg.Leave(context.Background(), sessionID, c.id)

	c.mu.Lock()
	c.leaving = false
	c.mu.Unlock()

	c.emit(Event{Kind: EventInterrupted, Gone: names, Reason: "player disconnected"})
}

// onSessionGone fires when the session record disappears underneath
// us, which is how non-hosts learn about a teardown.
func (c *Client) onSessionGone() {
	c.mu.Lock()
	leaving := c.leaving
	c.mu.Unlock()
	if leaving {
		return
	}
	c.detach()
	c.emit(Event{Kind: EventInterrupted, Reason: "session no longer exists"})
}

// emit never blocks; a full channel drops the oldest event first so
// the consumer always ends up with the freshest state. Events raised
// after Close are discarded.
func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.events <- ev:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}
