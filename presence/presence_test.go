/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/store"
)

func TestHeartbeatLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()

	id := identity.Identity{UserID: "user-1", Name: "Asha"}
	hb, err := StartHeartbeat(ctx, conn, "SESS01", "p1", id, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}

	var rec Record
	if _, err := conn.Read(ctx, Path("SESS01", "p1"), &rec); err != nil {
		t.Fatal(err)
	}
	if !rec.Online || rec.UserID != "user-1" || rec.Name != "Asha" {
		t.Errorf("initial record = %+v", rec)
	}

	// The loop keeps rewriting the record.
	first := rec.LastSeen
	waitFor(t, func() bool {
		var r Record
		if _, err := conn.Read(ctx, Path("SESS01", "p1"), &r); err != nil {
			return false
		}
		return r.LastSeen.After(first)
	})

	hb.Stop()
	if _, err := conn.Read(ctx, Path("SESS01", "p1"), nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record after Stop: %v, want ErrNotFound", err)
	}
}

// Closing the connection without a clean Stop removes the record via
// the on-disconnect hook.
func TestHeartbeatDisconnectCleanup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	observer := s.Connect()
	defer observer.Close()

	id := identity.Identity{UserID: "user-2", Name: "Bina"}
	if _, err := StartHeartbeat(ctx, conn, "SESS02", "p2", id, time.Minute, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := observer.Read(ctx, Path("SESS02", "p2"), nil); err != nil {
		t.Fatal(err)
	}

	conn.Close()

	waitFor(t, func() bool {
		_, err := observer.Read(ctx, Path("SESS02", "p2"), nil)
		return errors.Is(err, store.ErrNotFound)
	})
}

// monitorHarness wires a Monitor against a mutable roster and collects
// onGone callbacks.
type monitorHarness struct {
	mu      sync.Mutex
	players []game.Player
	state   game.State
	gone    chan []string
}

func newMonitorHarness(players []game.Player, state game.State) *monitorHarness {
	return &monitorHarness{players: players, state: state, gone: make(chan []string, 4)}
}

func (h *monitorHarness) roster() ([]game.Player, game.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.players, h.state
}

func (h *monitorHarness) setState(state game.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

func (h *monitorHarness) onGone(names []string) {
	h.gone <- names
}

func writeRecord(t *testing.T, conn *store.Conn, sessionID, playerID, name string) {
	t.Helper()
	err := conn.Apply(context.Background(), nil, store.Op{
		Path:  Path(sessionID, playerID),
		Value: Record{Online: true, LastSeen: time.Now(), UserID: playerID, Name: name},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func removeRecord(t *testing.T, conn *store.Conn, sessionID, playerID string) {
	t.Helper()
	if err := conn.Apply(context.Background(), nil, store.Remove(Path(sessionID, playerID))); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorReportsGonePeer(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()

	h := newMonitorHarness([]game.Player{
		{ID: "self", Name: "Asha"},
		{ID: "peer", Name: "Bina"},
	}, game.StatePlaying)

	m := Watch(conn, "SESS03", "self", h.roster, h.onGone)
	defer m.Stop()

	writeRecord(t, conn, "SESS03", "self", "Asha")
	writeRecord(t, conn, "SESS03", "peer", "Bina")
	// The monitor lists current state on each event, so the record has
	// to be observed before it vanishes to count as a disconnect.
	settle()
	removeRecord(t, conn, "SESS03", "peer")

	select {
	case names := <-h.gone:
		if len(names) != 1 || names[0] != "Bina" {
			t.Errorf("gone = %v, want [Bina]", names)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnect report")
	}

	// The notice fires once; subsequent events stay quiet.
	writeRecord(t, conn, "SESS03", "self", "Asha")
	select {
	case names := <-h.gone:
		t.Errorf("repeated report: %v", names)
	case <-time.After(100 * time.Millisecond):
	}
}

// A roster member whose record never landed is not a disconnect, and
// the monitor never reports the watcher itself.
func TestMonitorIgnoresFreshJoinerAndSelf(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()

	h := newMonitorHarness([]game.Player{
		{ID: "self", Name: "Asha"},
		{ID: "peer", Name: "Bina"},
		{ID: "ghost", Name: "Chand"},
	}, game.StatePlaying)

	m := Watch(conn, "SESS04", "self", h.roster, h.onGone)
	defer m.Stop()

	writeRecord(t, conn, "SESS04", "self", "Asha")
	writeRecord(t, conn, "SESS04", "peer", "Bina")
	settle()

	// Removing the watcher's own record generates events while the
	// roster still lists ghost, whose record never existed.
	removeRecord(t, conn, "SESS04", "self")
	removeRecord(t, conn, "SESS04", "peer")

	select {
	case names := <-h.gone:
		if len(names) != 1 || names[0] != "Bina" {
			t.Errorf("gone = %v, want [Bina]", names)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnect report")
	}
}

// Lobby departures are normal; the monitor only reports during play.
func TestMonitorQuietOutsidePlaying(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()

	h := newMonitorHarness([]game.Player{
		{ID: "self", Name: "Asha"},
		{ID: "peer", Name: "Bina"},
	}, game.StateLobby)

	m := Watch(conn, "SESS05", "self", h.roster, h.onGone)
	defer m.Stop()

	writeRecord(t, conn, "SESS05", "peer", "Bina")
	settle()
	removeRecord(t, conn, "SESS05", "peer")

	select {
	case names := <-h.gone:
		t.Fatalf("lobby departure reported: %v", names)
	case <-time.After(100 * time.Millisecond):
	}

	// Once play starts the same pattern is a real interruption.
	h.setState(game.StatePlaying)
	writeRecord(t, conn, "SESS05", "peer", "Bina")
	settle()
	removeRecord(t, conn, "SESS05", "peer")

	select {
	case names := <-h.gone:
		if len(names) != 1 || names[0] != "Bina" {
			t.Errorf("gone = %v, want [Bina]", names)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnect report after play started")
	}
}

// settle gives the subscription pump time to deliver pending events.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
