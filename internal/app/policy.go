package app

import "github.com/dkeye/Huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose outbound queue is full
// or that refused a frame.
type Policy interface {
	OnBackPressure(cid core.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ConnID) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the connection.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(core.ConnID) BackpressureAction {
	return DropFrame
}
