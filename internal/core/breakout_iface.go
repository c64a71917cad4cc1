package core

import (
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrBreakoutEnded = errors.New("breakout room has ended")
	ErrNotAttached   = errors.New("connection is not attached to this breakout room")
)

type BreakoutState int32

const (
	BreakoutCreated BreakoutState = iota
	BreakoutActive
	BreakoutEnded
)

func (s BreakoutState) String() string {
	switch s {
	case BreakoutCreated:
		return "created"
	case BreakoutActive:
		return "active"
	case BreakoutEnded:
		return "ended"
	}
	return "unknown"
}

// BreakoutService is the core-facing API of one breakout session.
// It owns the attachment set but never touches transport resources.
type BreakoutService interface {
	Breakout() *domain.Breakout
	State() BreakoutState
	Info() BreakoutInfo

	Attach(cid ConnID) error
	// Detach reports whether the attachment set became empty.
	Detach(cid ConnID) (bool, error)
	IsAttached(cid ConnID) bool
	Attached() []ConnID
	// Broadcast fans data out to every attached connection through s.
	Broadcast(s Sender, data Frame) PublishResult
	// End moves the session to its terminal state and returns the
	// connections that were attached.
	End() []ConnID
}
