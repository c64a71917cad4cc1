package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw encoded message.
type Frame []byte

// ConnID identifies one accepted transport. Generated by the server at accept time.
type ConnID string

type ConnState int32

const (
	ConnOpen ConnState = iota
	ConnClosing
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnOpen:
		return "open"
	case ConnClosing:
		return "closing"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking.
	TrySend(f Frame) error
	State() ConnState
	Close()
}

// Sender writes a frame to a connection by id. The Registry is the only
// implementation; everything else addresses transports through it.
type Sender interface {
	SendFrame(cid ConnID, f Frame) error
}
