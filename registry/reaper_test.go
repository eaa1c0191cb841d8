/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Seednode/rajarani/presence"
	"github.com/Seednode/rajarani/store"
)

func TestSweepSessionsRemovesIdle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, _, err := reg.Create(ctx, "Player 0", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Join(ctx, session.ID, "Player 1", testIdentity(1)); err != nil {
		t.Fatal(err)
	}

	reg.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := reg.SweepSessions(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, _, err := reg.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session survived the sweep: %v", err)
	}
	for i := 0; i < 2; i++ {
		path := MembershipPath(testIdentity(i).UserID, session.ID)
		if _, err := conn.Read(ctx, path, nil); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("membership marker %s survived the sweep", path)
		}
	}
}

func TestSweepSessionsSkipsPresent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, playerID, err := reg.Create(ctx, "Player 0", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	err = conn.Apply(ctx, nil, store.Op{
		Path:  presence.Path(session.ID, playerID),
		Value: presence.Record{Online: true, LastSeen: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}

	reg.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := reg.SweepSessions(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, _, err := reg.Get(ctx, session.ID); err != nil {
		t.Errorf("session with live presence was reaped: %v", err)
	}
}

func TestSweepSessionsKeepsRecent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, _, err := reg.Create(ctx, "Player 0", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.SweepSessions(ctx, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.Get(ctx, session.ID); err != nil {
		t.Errorf("recent session was reaped: %v", err)
	}
}
