/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package game implements the role-chain rules: the fixed six-role
// hierarchy, label schemes over it, role assignment, and guess
// resolution. Everything here is pure; persistence and delivery live
// in the registry and client packages.
package game

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
)

// Role is a position in the fixed chain. The integer value is the
// chain-order index: the role at index i must find the role at i+1.
type Role int

const (
	Raja Role = iota
	Rani
	Mantri
	Sipahi
	Police
	Chor

	// ChainLength is the number of roles, and therefore the exact
	// number of players a session needs before it can start.
	ChainLength = 6
)

// rolePoints decreases monotonically along the chain; the terminal
// role scores nothing.
var rolePoints = [ChainLength]int{1000, 800, 600, 400, 200, 0}

// canonical names, used as the wire representation and as keys for
// host-supplied display-name overrides.
var roleNames = [ChainLength]string{"raja", "rani", "mantri", "sipahi", "police", "chor"}

// Roles returns the chain in order.
func Roles() [ChainLength]Role {
	return [ChainLength]Role{Raja, Rani, Mantri, Sipahi, Police, Chor}
}

func (r Role) Valid() bool {
	return r >= Raja && r <= Chor
}

// Points returns the score a player holding r at game end receives.
func (r Role) Points() int {
	if !r.Valid() {
		return 0
	}
	return rolePoints[r]
}

// Next returns the role r must find, or false for the terminal role.
func (r Role) Next() (Role, bool) {
	if !r.Valid() || r == Chor {
		return 0, false
	}
	return r + 1, true
}

// String returns the canonical (wire) name of the role.
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// RoleFromName maps a canonical name back to its role.
func RoleFromName(name string) (Role, bool) {
	for i, n := range roleNames {
		if n == name {
			return Role(i), true
		}
	}
	return 0, false
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("game: invalid role %d", int(r))
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	role, ok := RoleFromName(name)
	if !ok {
		return fmt.Errorf("game: unknown role %q", name)
	}
	*r = role
	return nil
}

// Label schemes are display names over the one canonical chain. The
// hindi and english sets are the same structural chain under different
// labels, never two game modes.
const (
	SchemeHindi   = "hindi"
	SchemeEnglish = "english"
)

var labelSchemes = map[string][ChainLength]string{
	SchemeHindi:   {"Raja", "Rani", "Mantri", "Sipahi", "Police", "Chor"},
	SchemeEnglish: {"King", "Queen", "Minister", "Soldier", "Police", "Thief"},
}

// KnownScheme reports whether name is a built-in label scheme.
func KnownScheme(name string) bool {
	_, ok := labelSchemes[name]
	return ok
}

// Label resolves the display name for r under the given scheme, with
// host-supplied overrides (keyed by canonical role name) taking
// precedence. Unknown schemes fall back to hindi.
func Label(scheme string, overrides map[string]string, r Role) string {
	if !r.Valid() {
		return r.String()
	}
	if name, ok := overrides[r.String()]; ok && name != "" {
		return name
	}
	labels, ok := labelSchemes[scheme]
	if !ok {
		labels = labelSchemes[SchemeHindi]
	}
	return labels[r]
}

// AssignRoles shuffles the six chain roles uniformly onto the players
// in their current list order. The holder of the first chain role is
// marked as the current turn; all locks start cleared.
func AssignRoles(players []Player) error {
	return assignRoles(players, secureIntn)
}

func assignRoles(players []Player, intn func(int) int) error {
	if len(players) != ChainLength {
		return fmt.Errorf("game: need exactly %d players, have %d", ChainLength, len(players))
	}

	roles := Roles()
	// Fisher-Yates
	for i := len(roles) - 1; i > 0; i-- {
		j := intn(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}

	for i := range players {
		role := roles[i]
		players[i].Role = &role
		players[i].IsLocked = false
		players[i].IsCurrentTurn = role == Raja
	}
	return nil
}

// secureIntn draws from crypto/rand, rejection-sampled to stay uniform.
func secureIntn(n int) int {
	max := 256 - (256 % n)
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		if int(b[0]) < max {
			return int(b[0]) % n
		}
	}
}
