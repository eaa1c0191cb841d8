/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"time"
)

// State is the persisted session phase. The client-local "waiting"
// (no session loaded) is never written to the store.
type State string

const (
	StateLobby       State = "lobby"
	StatePlaying     State = "playing"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
)

// MaxPlayers doubles as both the roster capacity and, because sessions
// start only when full, the exact player count of a running game.
const MaxPlayers = ChainLength

// Player is one roster entry, owned by exactly one session. ID is an
// ephemeral per-session identifier; UserID ties it back to the durable
// identity.
type Player struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Role          *Role  `json:"role,omitempty"`
	IsHost        bool   `json:"isHost"`
	IsLocked      bool   `json:"isLocked"`
	IsCurrentTurn bool   `json:"isCurrentTurn"`
}

// Session is the root aggregate, persisted as one document at
// games/{id}. Timestamps are diagnostic only; conflict resolution is
// the store's version guard, not wall-clock time.
type Session struct {
	ID          string            `json:"id"`
	State       State             `json:"state"`
	HostID      string            `json:"hostId"`
	Players     []Player          `json:"players"`
	LabelScheme string            `json:"labelScheme"`
	RoleNames   map[string]string `json:"roleNames,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// PlayerByID returns the roster entry with the given session player id.
func (s *Session) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerByUserID returns the roster entry tied to the durable identity,
// used for the reconnect case on join.
func (s *Session) PlayerByUserID(userID string) *Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// CurrentTurn returns the player whose turn it is, or nil outside of
// active play.
func (s *Session) CurrentTurn() *Player {
	for i := range s.Players {
		if s.Players[i].IsCurrentTurn {
			return &s.Players[i]
		}
	}
	return nil
}

// holderOf returns the player currently holding the given role.
func (s *Session) holderOf(role Role) *Player {
	for i := range s.Players {
		if s.Players[i].Role != nil && *s.Players[i].Role == role {
			return &s.Players[i]
		}
	}
	return nil
}

// AllLocked reports whether every player's role is confirmed, which is
// the completion condition.
func (s *Session) AllLocked() bool {
	if len(s.Players) == 0 {
		return false
	}
	for i := range s.Players {
		if !s.Players[i].IsLocked {
			return false
		}
	}
	return true
}

// Label resolves a role's display name under this session's scheme and
// host overrides.
func (s *Session) Label(r Role) string {
	return Label(s.LabelScheme, s.RoleNames, r)
}

// Standing is one row of the final ranking.
type Standing struct {
	Place    int    `json:"place"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Label    string `json:"label"`
	Points   int    `json:"points"`
}

// Rankings orders players by descending role points. Two chain roles
// never share a point value, so ties can only arise from malformed
// records; the sort is stable on join order regardless.
func Rankings(s *Session) []Standing {
	standings := make([]Standing, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Role == nil {
			continue
		}
		standings = append(standings, Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Role:     *p.Role,
			Label:    s.Label(*p.Role),
			Points:   p.Role.Points(),
		})
	}

	// Insertion sort keeps equal-point entries in join order.
	for i := 1; i < len(standings); i++ {
		for j := i; j > 0 && standings[j-1].Points < standings[j].Points; j-- {
			standings[j-1], standings[j] = standings[j], standings[j-1]
		}
	}
	for i := range standings {
		standings[i].Place = i + 1
	}
	return standings
}
