// Package allowlist implements the single-user authorization gate that every
// bot entry point consults before doing any work.
package allowlist

import (
	"fmt"
	"strconv"
	"strings"
)

// Gate admits either everyone (open mode) or exactly one Telegram user id.
type Gate struct {
	userID int64
}

// New returns a gate for userID. Zero leaves the gate open.
func New(userID int64) Gate {
	return Gate{userID: userID}
}

// Parse builds a gate from a configured value. Empty input leaves the gate open.
func Parse(raw string) (Gate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Gate{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Gate{}, fmt.Errorf("invalid allowed user id %q: %w", raw, err)
	}
	if id == 0 {
		return Gate{}, fmt.Errorf("invalid allowed user id %q: must be non-zero", raw)
	}
	return New(id), nil
}

func (g Gate) IsAllowed(userID int64) bool {
	if g.userID == 0 {
		return true
	}
	return userID == g.userID
}

// Open reports whether every user is admitted.
func (g Gate) Open() bool {
	return g.userID == 0
}

func (g Gate) UserID() int64 {
	return g.userID
}
