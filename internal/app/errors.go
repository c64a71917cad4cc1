package app

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadySignedIn   = errors.New("already signed in")
	ErrNotSignedIn       = errors.New("sign in first")
	ErrInstructorPresent = errors.New("an instructor is already logged in")
	ErrUserOffline       = errors.New("user is not online")
	ErrNotInstructor     = errors.New("only the instructor can do this")
	ErrNotStudent        = errors.New("breakout rooms can only be opened with a student")
	ErrUnknownBreakout   = errors.New("unknown breakout room")
	ErrNotAttached       = errors.New("not a member of this breakout room")
	ErrWrongChannel      = errors.New("message not allowed on this connection")
	ErrEmptyText         = errors.New("invalid message parameters")
	ErrRateLimited       = errors.New("rate limited")
)
