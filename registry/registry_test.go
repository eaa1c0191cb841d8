/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/store"
)

func testIdentity(i int) identity.Identity {
	return identity.Identity{UserID: fmt.Sprintf("user-%d", i), Name: fmt.Sprintf("Player %d", i)}
}

// fullLobby creates a session and joins five more identities.
func fullLobby(t *testing.T, reg *Registry) (*game.Session, string) {
	t.Helper()
	ctx := context.Background()

	session, hostID, err := reg.Create(ctx, "Player 0", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < game.MaxPlayers; i++ {
		if _, _, err := reg.Join(ctx, session.ID, fmt.Sprintf("Player %d", i), testIdentity(i)); err != nil {
			t.Fatal(err)
		}
	}
	return session, hostID
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, playerID, err := reg.Create(ctx, "  Asha  ", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	if len(session.ID) != sessionCodeLen {
		t.Errorf("session code %q has wrong length", session.ID)
	}
	if session.State != game.StateLobby {
		t.Errorf("new session state %q, want lobby", session.State)
	}
	if session.HostID != playerID {
		t.Error("creator is not the host")
	}
	if len(session.Players) != 1 || !session.Players[0].IsHost {
		t.Error("roster must hold exactly the host")
	}
	if session.Players[0].Name != "Asha" {
		t.Errorf("name %q not trimmed", session.Players[0].Name)
	}
	if session.LabelScheme != game.SchemeHindi {
		t.Errorf("default label scheme %q", session.LabelScheme)
	}

	// Both the session record and the reverse index landed.
	if _, _, err := reg.Get(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(ctx, MembershipPath("user-0", session.ID), nil); err != nil {
		t.Error("membership marker missing after create")
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	if _, _, err := reg.Create(ctx, "", testIdentity(0)); !errors.Is(err, ErrNameRequired) {
		t.Errorf("empty name: %v, want ErrNameRequired", err)
	}
	if _, _, err := reg.Create(ctx, "Asha", identity.Identity{}); !errors.Is(err, identity.ErrRequired) {
		t.Errorf("missing identity: %v, want identity.ErrRequired", err)
	}
}

func TestJoinOutcomes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, hostID := fullLobby(t, reg)

	t.Run("not found", func(t *testing.T) {
		if _, _, err := reg.Join(ctx, "ZZZZZZ", "Late", testIdentity(7)); !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("full", func(t *testing.T) {
		if _, _, err := reg.Join(ctx, session.ID, "Late", testIdentity(7)); !errors.Is(err, ErrSessionFull) {
			t.Errorf("got %v, want ErrSessionFull", err)
		}
	})

	t.Run("already started", func(t *testing.T) {
		if _, err := reg.Start(ctx, session.ID, hostID, "", nil); err != nil {
			t.Fatal(err)
		}
		// A full session is also a started one here, so use a fresh
		// identity to hit the phase check rather than capacity.
		if _, _, err := reg.Join(ctx, session.ID, "Late", testIdentity(8)); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("got %v, want ErrAlreadyStarted", err)
		}
	})
}

func TestJoinReconnectReusesEntry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, _, err := reg.Create(ctx, "Host", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}
	_, firstID, err := reg.Join(ctx, session.ID, "Bina", testIdentity(1))
	if err != nil {
		t.Fatal(err)
	}

	again, secondID, err := reg.Join(ctx, session.ID, "Bina", testIdentity(1))
	if err != nil {
		t.Fatal(err)
	}
	if secondID != firstID {
		t.Errorf("reconnect produced a new player id %q, want %q", secondID, firstID)
	}
	if len(again.Players) != 2 {
		t.Errorf("reconnect duplicated the roster: %d entries", len(again.Players))
	}
}

// Lowercase codes typed by players resolve to the same session.
func TestJoinNormalizesCode(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, _, err := reg.Create(ctx, "Host", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	typed := " " + strings.ToLower(session.ID) + " "
	if _, _, err := reg.Join(ctx, typed, "Bina", testIdentity(1)); err != nil {
		t.Fatalf("join with messy code: %v", err)
	}
}

// A burst of concurrent joins on the last open slots must never push
// the roster past capacity: losers of the guarded commit re-validate
// and surface ErrSessionFull.
func TestJoinConcurrentCapacity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, _, err := reg.Create(ctx, "Host", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	const contenders = 10
	var wg sync.WaitGroup
	errs := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := New(s.Connect())
			_, _, err := r.Join(ctx, session.ID, fmt.Sprintf("P%d", i), testIdentity(100+i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	joined := 0
	for err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrSessionFull):
		case errors.Is(err, ErrContended):
		default:
			t.Errorf("unexpected join error: %v", err)
		}
	}

	final, _, err := reg.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Players) > game.MaxPlayers {
		t.Fatalf("roster overflowed to %d players", len(final.Players))
	}
	if len(final.Players) != 1+joined {
		t.Errorf("roster has %d players but %d joins succeeded", len(final.Players), joined)
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, hostID := fullLobby(t, reg)

	started, err := reg.Start(ctx, session.ID, hostID, game.SchemeEnglish, map[string]string{"chor": "Robber"})
	if err != nil {
		t.Fatal(err)
	}

	if started.State != game.StatePlaying {
		t.Errorf("state %q, want playing", started.State)
	}
	if started.LabelScheme != game.SchemeEnglish {
		t.Errorf("label scheme %q", started.LabelScheme)
	}

	seen := make(map[game.Role]bool)
	turns := 0
	for _, p := range started.Players {
		if p.Role == nil {
			t.Fatal("player without a role after start")
		}
		seen[*p.Role] = true
		if p.IsCurrentTurn {
			turns++
		}
	}
	if len(seen) != game.ChainLength || turns != 1 {
		t.Errorf("assignment: %d roles, %d turns", len(seen), turns)
	}

	if _, err := reg.Start(ctx, session.ID, hostID, "", nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start: %v, want ErrAlreadyStarted", err)
	}
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, hostID, err := reg.Create(ctx, "Host", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Start(ctx, session.ID, hostID, "", nil); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Errorf("underfull start: %v, want ErrNotEnoughPlayers", err)
	}
	if _, err := reg.Start(ctx, session.ID, hostID, "klingon", nil); err == nil {
		t.Error("unknown label scheme accepted")
	}

	full, _ := fullLobby(t, reg)
	if _, err := reg.Start(ctx, full.ID, "someone-else", "", nil); !errors.Is(err, ErrNotHost) {
		t.Errorf("non-host start: %v, want ErrNotHost", err)
	}
}

func TestGuessThroughRegistry(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	reg := New(s.Connect())

	session, hostID := fullLobby(t, reg)
	started, err := reg.Start(ctx, session.ID, hostID, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	actor := started.CurrentTurn()
	sought, _ := actor.Role.Next()
	var target *game.Player
	for i := range started.Players {
		if started.Players[i].Role != nil && *started.Players[i].Role == sought {
			target = &started.Players[i]
		}
	}

	after, outcome, err := reg.Guess(ctx, session.ID, actor.ID, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Correct {
		t.Error("guess against the sought role's holder reported incorrect")
	}
	if !after.PlayerByID(actor.ID).IsLocked || !after.PlayerByID(target.ID).IsLocked {
		t.Error("committed session does not reflect the locks")
	}

	// The persisted record matches what Guess returned.
	persisted, _, err := reg.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !persisted.PlayerByID(actor.ID).IsLocked {
		t.Error("lock not persisted")
	}

	if _, _, err := reg.Guess(ctx, session.ID, actor.ID, target.ID); !errors.Is(err, game.ErrNotYourTurn) {
		t.Errorf("replayed guess: %v, want ErrNotYourTurn", err)
	}
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, _ := fullLobby(t, reg)

	if err := reg.Teardown(ctx, session.ID, testIdentity(3)); !errors.Is(err, ErrNotHost) {
		t.Errorf("non-host teardown: %v, want ErrNotHost", err)
	}

	if err := reg.Teardown(ctx, session.ID, testIdentity(0)); err != nil {
		t.Fatal(err)
	}

	if _, _, err := reg.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Error("session record survived teardown")
	}
	for i := 0; i < game.MaxPlayers; i++ {
		path := MembershipPath(fmt.Sprintf("user-%d", i), session.ID)
		if _, err := conn.Read(ctx, path, nil); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("membership marker %s survived teardown", path)
		}
	}

	// Tearing down an already-gone session is not an error.
	if err := reg.Teardown(ctx, session.ID, testIdentity(0)); err != nil {
		t.Errorf("repeat teardown: %v", err)
	}
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	defer s.Close()
	conn := s.Connect()
	defer conn.Close()
	reg := New(conn)

	session, _, err := reg.Create(ctx, "Host", testIdentity(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Leave(ctx, session.ID, testIdentity(0)); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(ctx, MembershipPath("user-0", session.ID), nil); !errors.Is(err, store.ErrNotFound) {
		t.Error("membership marker survived leave")
	}
	// The roster entry stays; presence decides what absence means.
	if _, _, err := reg.Get(ctx, session.ID); err != nil {
		t.Error("leave must not remove the session record")
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode(" ab12cd \n"); got != "AB12CD" {
		t.Errorf("NormalizeCode = %q", got)
	}
}

func TestRandomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := randomCode(sessionCodeLen)
		if len(code) != sessionCodeLen {
			t.Fatalf("code %q has wrong length", code)
		}
		for _, c := range code {
			if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes out of 100 draws", len(seen))
	}
}
