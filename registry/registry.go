/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package registry creates and mutates session records in the shared
// store: lobby creation, code-based joins, the start transition, and
// guess resolution. Every transition is a single version-guarded
// commit, so concurrent writers are detected instead of silently
// overwriting each other.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/store"
)

var (
	ErrNotFound         = errors.New("registry: no session with that code")
	ErrAlreadyStarted   = errors.New("registry: session has already started")
	ErrSessionFull      = errors.New("registry: session is full")
	ErrNotHost          = errors.New("registry: only the host may do that")
	ErrNotEnoughPlayers = errors.New("registry: session needs six players to start")
	ErrNameRequired     = errors.New("registry: a display name is required")

	// ErrContended is returned when a guarded commit kept losing to
	// concurrent writers after bounded retries.
	ErrContended = errors.New("registry: too much contention, try again")
)

const (
	sessionCodeLen = 6
	playerIDLen    = 8

	// codeAlphabet is the 36-symbol set session codes and player ids
	// are drawn from.
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxAttempts bounds retry-with-regeneration on code collisions
	// and re-read retries on guard conflicts.
	maxAttempts = 5
)

// SessionPrefix is where session records live in the store.
const SessionPrefix = "games"

// SessionPath returns the store path of a session record.
func SessionPath(code string) string {
	return SessionPrefix + "/" + code
}

// MembershipPath returns the reverse-index path tying a durable user
// to a session, used for later cleanup.
func MembershipPath(userID, code string) string {
	return "userGames/" + userID + "/" + code
}

// Membership is the reverse-index marker document.
type Membership struct {
	JoinedAt   time.Time `json:"joinedAt"`
	LastActive time.Time `json:"lastActive"`
}

// Registry performs session operations over one store connection.
type Registry struct {
	conn *store.Conn
	now  func() time.Time
}

func New(conn *store.Conn) *Registry {
	return &Registry{conn: conn, now: time.Now}
}

// Create allocates a session code and a player id, writes the session
// with its single host player, and registers the reverse index, all in
// one commit. A code collision loses the guarded create and a fresh
// code is drawn, up to maxAttempts times.
func (r *Registry) Create(ctx context.Context, name string, id identity.Identity) (*game.Session, string, error) {
	name = strings.TrimSpace(name)
	if !id.Valid() {
		return nil, "", identity.ErrRequired
	}
	if name == "" {
		return nil, "", ErrNameRequired
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code := randomCode(sessionCodeLen)
		playerID := randomCode(playerIDLen)
		now := r.now()

		session := &game.Session{
			ID:     code,
			State:  game.StateLobby,
			HostID: playerID,
			Players: []game.Player{{
				ID:     playerID,
				UserID: id.UserID,
				Name:   name,
				IsHost: true,
			}},
			LabelScheme: game.SchemeHindi,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := r.conn.Apply(ctx,
			[]store.Guard{{Path: SessionPath(code), Version: 0}},
			store.Op{Path: SessionPath(code), Value: session},
			store.Op{Path: MembershipPath(id.UserID, code), Value: Membership{JoinedAt: now, LastActive: now}},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return session, playerID, nil
	}

	return nil, "", ErrContended
}

// Join adds the identity to the session's roster. An identity that
// already has a roster entry gets it back unchanged (reconnect), with
// no duplicate. Otherwise the capacity and phase checks are part of
// the same guarded commit as the append, so a race on the last open
// slot loses with a conflict and re-validates against the new roster.
func (r *Registry) Join(ctx context.Context, code, name string, id identity.Identity) (*game.Session, string, error) {
	name = strings.TrimSpace(name)
	if !id.Valid() {
		return nil, "", identity.ErrRequired
	}
	if name == "" {
		return nil, "", ErrNameRequired
	}
	code = NormalizeCode(code)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var session game.Session
		version, err := r.conn.Read(ctx, SessionPath(code), &session)
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		if err != nil {
			return nil, "", err
		}

		if existing := session.PlayerByUserID(id.UserID); existing != nil {
			now := r.now()
			err := r.conn.Apply(ctx, nil, store.Op{
				Path:  MembershipPath(id.UserID, code),
				Value: Membership{JoinedAt: now, LastActive: now},
			})
			if err != nil {
				return nil, "", err
			}
			return &session, existing.ID, nil
		}

		if session.State != game.StateLobby {
			return nil, "", ErrAlreadyStarted
		}
		if len(session.Players) >= game.MaxPlayers {
			return nil, "", ErrSessionFull
		}

		playerID := randomCode(playerIDLen)
		now := r.now()
		session.Players = append(session.Players, game.Player{
			ID:     playerID,
			UserID: id.UserID,
			Name:   name,
		})
		session.UpdatedAt = now

		err = r.conn.Apply(ctx,
			[]store.Guard{{Path: SessionPath(code), Version: version}},
			store.Op{Path: SessionPath(code), Value: &session},
			store.Op{Path: MembershipPath(id.UserID, code), Value: Membership{JoinedAt: now, LastActive: now}},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return &session, playerID, nil
	}

	return nil, "", ErrContended
}

// Start performs the lobby → playing transition: host-only, exactly
// six players, role assignment and phase change in one guarded commit.
// The host may pick a label scheme and per-role display overrides.
func (r *Registry) Start(ctx context.Context, code, hostPlayerID, labelScheme string, roleNames map[string]string) (*game.Session, error) {
	code = NormalizeCode(code)
	if labelScheme == "" {
		labelScheme = game.SchemeHindi
	}
	if !game.KnownScheme(labelScheme) {
		return nil, fmt.Errorf("registry: unknown label scheme %q", labelScheme)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var session game.Session
		version, err := r.conn.Read(ctx, SessionPath(code), &session)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		if session.State != game.StateLobby {
			return nil, ErrAlreadyStarted
		}
		if session.HostID != hostPlayerID {
			return nil, ErrNotHost
		}
		if len(session.Players) != game.MaxPlayers {
			return nil, ErrNotEnoughPlayers
		}

		if err := game.AssignRoles(session.Players); err != nil {
			return nil, err
		}
		session.State = game.StatePlaying
		session.LabelScheme = labelScheme
		session.RoleNames = roleNames
		session.UpdatedAt = r.now()

		err = r.conn.Apply(ctx,
			[]store.Guard{{Path: SessionPath(code), Version: version}},
			store.Op{Path: SessionPath(code), Value: &session},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &session, nil
	}

	return nil, ErrContended
}

// Guess resolves one guess as a guarded read-modify-write. A conflict
// means another client committed first; the re-read re-validates the
// preconditions against the fresh snapshot, so a turn that has moved
// on surfaces as ErrNotYourTurn rather than a lost update.
func (r *Registry) Guess(ctx context.Context, code, actorID, targetID string) (*game.Session, game.Outcome, error) {
	code = NormalizeCode(code)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var session game.Session
		version, err := r.conn.Read(ctx, SessionPath(code), &session)
		if errors.Is(err, store.ErrNotFound) {
			return nil, game.Outcome{}, ErrNotFound
		}
		if err != nil {
			return nil, game.Outcome{}, err
		}

		outcome, err := game.ResolveGuess(&session, actorID, targetID)
		if err != nil {
			return nil, game.Outcome{}, err
		}
		session.UpdatedAt = r.now()

		err = r.conn.Apply(ctx,
			[]store.Guard{{Path: SessionPath(code), Version: version}},
			store.Op{Path: SessionPath(code), Value: &session},
		)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, game.Outcome{}, err
		}
		return &session, outcome, nil
	}

	return nil, game.Outcome{}, ErrContended
}

// Get reads a session record and its version.
func (r *Registry) Get(ctx context.Context, code string) (*game.Session, int64, error) {
	var session game.Session
	version, err := r.conn.Read(ctx, SessionPath(NormalizeCode(code)), &session)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return &session, version, nil
}

// Leave removes the reverse-index entry for this identity. The roster
// entry stays; presence decides what a missing player means.
func (r *Registry) Leave(ctx context.Context, code string, id identity.Identity) error {
	if !id.Valid() {
		return identity.ErrRequired
	}
	return r.conn.Apply(ctx, nil, store.Remove(MembershipPath(id.UserID, NormalizeCode(code))))
}

// Teardown deletes the session record outright. Only the host may do
// this; it is the destructive end of the interruption policy, where
// every remaining peer observes the disappearance and interrupts too. A
// session that is already gone is not an error.
func (r *Registry) Teardown(ctx context.Context, code string, id identity.Identity) error {
	if !id.Valid() {
		return identity.ErrRequired
	}
	code = NormalizeCode(code)

	var session game.Session
	_, err := r.conn.Read(ctx, SessionPath(code), &session)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	host := session.PlayerByID(session.HostID)
	if host == nil || host.UserID != id.UserID {
		return ErrNotHost
	}

	ops := []store.Op{store.Remove(SessionPath(code))}
	for _, p := range session.Players {
		ops = append(ops, store.Remove(MembershipPath(p.UserID, code)))
	}
	return r.conn.Apply(ctx, nil, ops...)
}

// NormalizeCode uppercases a user-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomCode draws n symbols from the code alphabet with crypto/rand,
// rejection-sampled to stay uniform.
func randomCode(n int) string {
	const max = byte(255 - (256 % len(codeAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}
