/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/store"
)

// QueuePrefix is where quick-play queues live in the store.
const QueuePrefix = "quickPlay/queues"

// QueuePath returns the store path of a queue record.
func QueuePath(id string) string {
	return QueuePrefix + "/" + id
}

type QueueStatus string

const (
	QueueWaiting  QueueStatus = "waiting"
	QueueStarting QueueStatus = "starting"
)

// QueueMember is one ephemeral entry in a matchmaking queue. The
// timestamp doubles as its liveness signal.
type QueueMember struct {
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue is the quickPlay/queues/{id} record.
type Queue struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"createdAt"`
	Status    QueueStatus            `json:"status"`
	GameID    string                 `json:"gameId,omitempty"`
	Players   map[string]QueueMember `json:"players,omitempty"`
}

// ActiveCount counts members whose timestamp is within the staleness
// window. Only active members count toward the six needed to start.
func (q *Queue) ActiveCount(now time.Time, window time.Duration) int {
	count := 0
	for _, m := range q.Players {
		if now.Sub(m.Timestamp) <= window {
			count++
		}
	}
	return count
}

// activeMemberIDs returns the active member ids sorted by join
// timestamp, ties broken by id so every observer agrees on the order.
func (q *Queue) activeMemberIDs(now time.Time, window time.Duration) []string {
	ids := make([]string, 0, len(q.Players))
	for id, m := range q.Players {
		if now.Sub(m.Timestamp) <= window {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := q.Players[ids[i]], q.Players[ids[j]]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Matchmaker manages quick-play queues over one store connection.
type Matchmaker struct {
	conn   *store.Conn
	window time.Duration
	now    func() time.Time
}

// NewMatchmaker builds a matchmaker. window is how old a member's
// timestamp may be before it no longer counts as active.
func NewMatchmaker(conn *store.Conn, window time.Duration) *Matchmaker {
	if window <= 0 {
		window = time.Minute
	}
	return &Matchmaker{conn: conn, window: window, now: time.Now}
}

// JoinQueue places the identity in a queue. Eligible queues are
// waiting and below capacity counting only active members; the fullest
// one wins (packing sessions faster and minimizing fragmentation),
// ties broken by queue id. With no eligible queue a new one is created.
// An identity already present in an eligible queue gets its existing
// entry refreshed instead of a duplicate.
func (m *Matchmaker) JoinQueue(ctx context.Context, name string, id identity.Identity) (string, string, error) {
	if !id.Valid() {
		return "", "", identity.ErrRequired
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		queueID, err := m.pickQueue(ctx, id.UserID)
		if err != nil {
			return "", "", err
		}

		if queueID == "" {
			queueID = randomCode(sessionCodeLen)
			memberID := randomCode(playerIDLen)
			now := m.now()
			queue := &Queue{
				ID:        queueID,
				CreatedAt: now,
				Status:    QueueWaiting,
				Players: map[string]QueueMember{
					memberID: {Name: name, UserID: id.UserID, Timestamp: now},
				},
			}
			err := m.conn.Apply(ctx,
				[]store.Guard{{Path: QueuePath(queueID), Version: 0}},
				store.Op{Path: QueuePath(queueID), Value: queue},
			)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return "", "", err
			}
			return queueID, memberID, nil
		}

		var queue Queue
		version, err := m.conn.Read(ctx, QueuePath(queueID), &queue)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", "", err
		}

		now := m.now()
		memberID := ""
		for mid, member := range queue.Players {
			if member.UserID == id.UserID {
				memberID = mid
				break
			}
		}

		// Capacity gates newcomers only; a user already in the queue is
		// refreshed even when it sits at the player cap.
		if queue.Status != QueueWaiting || (memberID == "" && queue.ActiveCount(now, m.window) >= game.MaxPlayers) {
			continue
		}

		if memberID == "" {
			memberID = randomCode(playerIDLen)
		}
		if queue.Players == nil {
			queue.Players = make(map[string]QueueMember)
		}
		queue.Players[memberID] = QueueMember{Name: name, UserID: id.UserID, Timestamp: now}

		err = m.conn.Apply(ctx,
			[]store.Guard{{Path: QueuePath(queueID), Version: version}},
			store.Op{Path: QueuePath(queueID), Value: &queue},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		return queueID, memberID, nil
	}

	return "", "", ErrContended
}

// pickQueue returns the id of the fullest eligible queue, preferring a
// queue the user is already in, or "" when a new queue is needed.
func (m *Matchmaker) pickQueue(ctx context.Context, userID string) (string, error) {
	docs, err := m.conn.List(ctx, QueuePrefix)
	if err != nil {
		return "", err
	}

	now := m.now()
	best := ""
	bestCount := -1
	for _, raw := range docs {
		var queue Queue
		if err := decode(raw, &queue); err != nil {
			continue
		}
		if queue.Status != QueueWaiting {
			continue
		}
		for _, member := range queue.Players {
			if member.UserID == userID {
				return queue.ID, nil
			}
		}
		count := queue.ActiveCount(now, m.window)
		if count >= game.MaxPlayers {
			continue
		}
		if count > bestCount || (count == bestCount && queue.ID < best) {
			best = queue.ID
			bestCount = count
		}
	}
	return best, nil
}

// Refresh rewrites the member's timestamp, keeping it active. Called
// on the same cadence as presence heartbeats.
func (m *Matchmaker) Refresh(ctx context.Context, queueID, memberID string) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var queue Queue
		version, err := m.conn.Read(ctx, QueuePath(queueID), &queue)
		if err != nil {
			return err
		}
		member, ok := queue.Players[memberID]
		if !ok {
			return ErrNotFound
		}
		member.Timestamp = m.now()
		queue.Players[memberID] = member

		err = m.conn.Apply(ctx,
			[]store.Guard{{Path: QueuePath(queueID), Version: version}},
			store.Op{Path: QueuePath(queueID), Value: &queue},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return err
	}
	return ErrContended
}

// LeaveQueue removes the member; the last member out deletes the queue.
func (m *Matchmaker) LeaveQueue(ctx context.Context, queueID, memberID string) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var queue Queue
		version, err := m.conn.Read(ctx, QueuePath(queueID), &queue)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		delete(queue.Players, memberID)

		var op store.Op
		if len(queue.Players) == 0 {
			op = store.Remove(QueuePath(queueID))
		} else {
			op = store.Op{Path: QueuePath(queueID), Value: &queue}
		}
		err = m.conn.Apply(ctx, []store.Guard{{Path: QueuePath(queueID), Version: version}}, op)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return err
	}
	return ErrContended
}

// Promote attempts the waiting → starting transition once the queue
// holds six active members. Exactly one member wins the guarded
// commit; the winner creates the session (earliest member becomes
// host) and publishes its id on the queue record for the others. A
// caller that lost the race reads the published id instead.
//
// Returns the session id, this member's player id in it, and whether a
// session exists yet.
func (m *Matchmaker) Promote(ctx context.Context, queueID, memberID string) (string, string, bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var queue Queue
		version, err := m.conn.Read(ctx, QueuePath(queueID), &queue)
		if errors.Is(err, store.ErrNotFound) {
			return "", "", false, ErrNotFound
		}
		if err != nil {
			return "", "", false, err
		}

		if queue.GameID != "" {
			var session game.Session
			if _, err := m.conn.Read(ctx, SessionPath(queue.GameID), &session); err != nil {
				return "", "", false, err
			}
			member, ok := queue.Players[memberID]
			if !ok {
				return "", "", false, ErrNotFound
			}
			player := session.PlayerByUserID(member.UserID)
			if player == nil {
				return "", "", false, ErrNotFound
			}
			return queue.GameID, player.ID, true, nil
		}

		now := m.now()
		active := queue.activeMemberIDs(now, m.window)
		if len(active) < game.MaxPlayers {
			return "", "", false, nil
		}
		if queue.Status != QueueWaiting {
			// Another member is mid-promotion; observe again shortly.
			return "", "", false, nil
		}

		active = active[:game.MaxPlayers]
		sessionID := randomCode(sessionCodeLen)
		session := &game.Session{
			ID:          sessionID,
			State:       game.StateLobby,
			LabelScheme: game.SchemeHindi,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		ops := []store.Op{}
		selfPlayerID := ""
		for i, mid := range active {
			member := queue.Players[mid]
			playerID := randomCode(playerIDLen)
			if mid == memberID {
				selfPlayerID = playerID
			}
			player := game.Player{
				ID:     playerID,
				UserID: member.UserID,
				Name:   member.Name,
				IsHost: i == 0,
			}
			if i == 0 {
				session.HostID = playerID
			}
			session.Players = append(session.Players, player)
			ops = append(ops, store.Op{
				Path:  MembershipPath(member.UserID, sessionID),
				Value: Membership{JoinedAt: now, LastActive: now},
			})
		}
		if selfPlayerID == "" {
			return "", "", false, ErrNotFound
		}

		queue.Status = QueueStarting
		queue.GameID = sessionID
		ops = append(ops,
			store.Op{Path: SessionPath(sessionID), Value: session},
			store.Op{Path: QueuePath(queueID), Value: &queue},
		)

		err = m.conn.Apply(ctx,
			[]store.Guard{
				{Path: QueuePath(queueID), Version: version},
				{Path: SessionPath(sessionID), Version: 0},
			},
			ops...,
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return "", "", false, err
		}
		return sessionID, selfPlayerID, true, nil
	}

	return "", "", false, ErrContended
}

// Sweep removes stale members from every queue and deletes queues with
// nobody left. Individual queue failures are skipped; the sweep keeps
// going and tries again next tick.
func (m *Matchmaker) Sweep(ctx context.Context) error {
	docs, err := m.conn.List(ctx, QueuePrefix)
	if err != nil {
		return err
	}

	now := m.now()
	for path := range docs {
		var queue Queue
		version, err := m.conn.Read(ctx, path, &queue)
		if err != nil {
			continue
		}
		changed := false
		for mid, member := range queue.Players {
			if now.Sub(member.Timestamp) > m.window {
				delete(queue.Players, mid)
				changed = true
			}
		}
		if !changed {
			continue
		}

		var op store.Op
		if len(queue.Players) == 0 {
			op = store.Remove(path)
		} else {
			op = store.Op{Path: path, Value: &queue}
		}
		// Lost guards just mean someone touched the queue; the next
		// sweep will see the fresh record.
		_ = m.conn.Apply(ctx, []store.Guard{{Path: path, Version: version}}, op)
	}
	return nil
}

// RunSweeper runs Sweep on a fixed cadence until ctx is done, logging
// and continuing on iteration failures.
func (m *Matchmaker) RunSweeper(ctx context.Context, interval time.Duration, logf func(string, ...any)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && logf != nil {
				logf("QUEUE: sweep failed: %v", err)
			}
		}
	}
}

func decode(raw []byte, dst any) error {
	return json.Unmarshal(raw, dst)
}
