/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"errors"
)

var (
	ErrNotPlaying    = errors.New("game: session is not in play")
	ErrUnknownPlayer = errors.New("game: no such player in this session")
	ErrNotYourTurn   = errors.New("game: not this player's turn")
	ErrSelfGuess     = errors.New("game: cannot guess yourself")
	ErrTargetLocked  = errors.New("game: target is already confirmed")
	ErrChainComplete = errors.New("game: chain is already complete")
)

// Outcome describes one resolved guess.
type Outcome struct {
	Correct    bool   `json:"correct"`
	ActorID    string `json:"actorId"`
	TargetID   string `json:"targetId"`
	SoughtRole Role   `json:"soughtRole"`
	NextTurnID string `json:"nextTurnId"`
	Completed  bool   `json:"completed"`
}

// ResolveGuess applies one guess by actorID against targetID to the
// session in place and reports the outcome. It is deterministic: the
// same snapshot and inputs always produce the same roster.
//
// A correct guess confirms both participants (locks them) and passes
// the turn to the target, who continues the chain. On an incorrect
// guess the two players swap role and lock flag; the swap is public,
// so a confirmed role position stays confirmed even as its holder
// changes. The actor retains the turn with a new role to seek, unless
// the swap handed the actor the terminal role, in which case the turn
// follows the seeker role to its new holder.
//
// The current-turn holder may act while locked: the lock protects a
// role from swaps, it does not bar the confirmed chain-head from
// seeking its successor.
//
// After each guess the hand-off is normalized so the turn always lands
// on a player with a legal move: a terminal-role holder passes the turn
// to the first unconfirmed player in chain order, and a player left as
// the sole unconfirmed one is confirmed by elimination, which completes
// the session.
func ResolveGuess(s *Session, actorID, targetID string) (Outcome, error) {
	if s.State != StatePlaying {
		return Outcome{}, ErrNotPlaying
	}
	if actorID == targetID {
		return Outcome{}, ErrSelfGuess
	}

	actor := s.PlayerByID(actorID)
	target := s.PlayerByID(targetID)
	if actor == nil || target == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if !actor.IsCurrentTurn {
		return Outcome{}, ErrNotYourTurn
	}
	if target.IsLocked {
		return Outcome{}, ErrTargetLocked
	}
	if actor.Role == nil || target.Role == nil {
		return Outcome{}, ErrNotPlaying
	}

	sought, ok := actor.Role.Next()
	if !ok {
		return Outcome{}, ErrChainComplete
	}

	out := Outcome{
		ActorID:    actorID,
		TargetID:   targetID,
		SoughtRole: sought,
	}

	if *target.Role == sought {
		out.Correct = true
		actor.IsLocked = true
		target.IsLocked = true
		actor.IsCurrentTurn = false
		target.IsCurrentTurn = true
		out.NextTurnID = target.ID
	} else {
		*actor.Role, *target.Role = *target.Role, *actor.Role
		actor.IsLocked, target.IsLocked = target.IsLocked, actor.IsLocked
		if _, ok := actor.Role.Next(); ok {
			out.NextTurnID = actor.ID
		} else {
			// The actor swapped into the terminal role and has no
			// successor left to seek; the turn follows the seeker
			// role to its new holder.
			actor.IsCurrentTurn = false
			target.IsCurrentTurn = true
			out.NextTurnID = target.ID
		}
	}

	if !s.AllLocked() {
		next := s.PlayerByID(out.NextTurnID)

		// Incorrect swaps can skip a chain role, so a correct walk may
		// reach the terminal role while unconfirmed players remain. The
		// terminal holder has nothing to seek; the turn goes to the
		// first unconfirmed player in chain order instead.
		if _, ok := next.Role.Next(); !ok {
			for _, r := range Roles() {
				if p := s.holderOf(r); p != nil && !p.IsLocked {
					next.IsCurrentTurn = false
					p.IsCurrentTurn = true
					next = p
					out.NextTurnID = p.ID
					break
				}
			}
		}

		// With every other player confirmed, the last unconfirmed role
		// is pinned by elimination; there is nobody left to guess at.
		if !next.IsLocked {
			alone := true
			for i := range s.Players {
				if s.Players[i].ID != next.ID && !s.Players[i].IsLocked {
					alone = false
					break
				}
			}
			if alone {
				next.IsLocked = true
			}
		}
	}

	if s.AllLocked() {
		s.State = StateCompleted
		out.Completed = true
		for i := range s.Players {
			s.Players[i].IsCurrentTurn = false
		}
		out.NextTurnID = ""
	}

	return out, nil
}
