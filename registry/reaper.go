/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package registry

import (
	"context"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/presence"
	"github.com/Seednode/rajarani/store"
)

// SweepSessions removes session records that have been idle beyond
// maxIdle and have nobody present, along with their reverse-index
// markers. A session with any live presence record is never reaped,
// no matter how long ago its last commit was.
func (r *Registry) SweepSessions(ctx context.Context, maxIdle time.Duration) error {
	docs, err := r.conn.List(ctx, SessionPrefix)
	if err != nil {
		return err
	}

	now := r.now()
	for path := range docs {
		var session game.Session
		version, err := r.conn.Read(ctx, path, &session)
		if err != nil {
			continue
		}
		if now.Sub(session.UpdatedAt) <= maxIdle {
			continue
		}

		live, err := r.conn.List(ctx, presence.SessionPrefix(session.ID))
		if err != nil || len(live) > 0 {
			continue
		}

		ops := []store.Op{store.Remove(path)}
		for _, p := range session.Players {
			ops = append(ops, store.Remove(MembershipPath(p.UserID, session.ID)))
		}
		// A lost guard means the session just saw a commit; the next
		// sweep re-reads it.
		_ = r.conn.Apply(ctx, []store.Guard{{Path: path, Version: version}}, ops...)
	}
	return nil
}

// RunReaper runs SweepSessions on a fixed cadence until ctx is done,
// logging and continuing on iteration failures.
func (r *Registry) RunReaper(ctx context.Context, interval, maxIdle time.Duration, logf func(string, ...any)) {
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
			if err := r.SweepSessions(ctx, maxIdle); err != nil && logf != nil {
				logf("GAMES: session sweep failed: %v", err)
			}
		}
	}
}
