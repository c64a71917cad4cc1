package app

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UserDirectory resolves online participants.
type UserDirectory interface {
	Get(id domain.UserID) (domain.User, bool)
}

// EndedBreakout is a torn-down session and the connections that were attached.
type EndedBreakout struct {
	ID    domain.BreakoutID
	Conns []core.ConnID
}

// BreakoutManager owns the lifetime of breakout sessions. It references
// participants and connections by id only.
type BreakoutManager struct {
	mu     sync.RWMutex
	rooms  map[domain.BreakoutID]core.BreakoutService
	users  UserDirectory
	sender core.Sender
	newID  func() domain.BreakoutID
}

func NewBreakoutManager(users UserDirectory, sender core.Sender) *BreakoutManager {
	return &BreakoutManager{
		rooms:  make(map[domain.BreakoutID]core.BreakoutService),
		users:  users,
		sender: sender,
		newID:  func() domain.BreakoutID { return domain.BreakoutID(uuid.NewString()) },
	}
}

// Create opens a session between an online instructor and an online student.
// Ids are random; a collision with an active session draws a fresh one.
func (m *BreakoutManager) Create(instructorID, studentID domain.UserID) (core.BreakoutService, error) {
	instructor, ok := m.users.Get(instructorID)
	if !ok {
		return nil, ErrUserOffline
	}
	if instructor.Role != domain.RoleInstructor {
		return nil, ErrNotInstructor
	}
	student, ok := m.users.Get(studentID)
	if !ok {
		return nil, ErrUserOffline
	}
	if student.Role != domain.RoleStudent {
		return nil, ErrNotStudent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	for m.rooms[id] != nil {
		id = m.newID()
	}
	room := core.NewBreakoutService(&domain.Breakout{
		ID:         id,
		Instructor: domain.RefOf(instructor),
		Student:    domain.RefOf(student),
	})
	m.rooms[id] = room
	log.Info().Str("module", "app.breakouts").Str("room", string(id)).Str("instructor", instructor.Username).Str("student", student.Username).Msg("breakout created")
	return room, nil
}

func (m *BreakoutManager) Get(id domain.BreakoutID) (core.BreakoutService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *BreakoutManager) Attach(id domain.BreakoutID, cid core.ConnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return ErrUnknownBreakout
	}
	return room.Attach(cid)
}

// Relay fans f out to the connections attached to id only.
func (m *BreakoutManager) Relay(id domain.BreakoutID, f core.Frame) (core.PublishResult, error) {
	room, ok := m.Get(id)
	if !ok {
		return core.PublishResult{}, ErrUnknownBreakout
	}
	return room.Broadcast(m.sender, f), nil
}

// Leave detaches cid; the session is destroyed when nobody is left.
func (m *BreakoutManager) Leave(id domain.BreakoutID, cid core.ConnID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return false, ErrUnknownBreakout
	}
	empty, err := room.Detach(cid)
	if errors.Is(err, core.ErrNotAttached) {
		return false, ErrNotAttached
	}
	if err != nil {
		return false, err
	}
	if empty {
		room.End()
		delete(m.rooms, id)
		log.Info().Str("module", "app.breakouts").Str("room", string(id)).Msg("breakout empty, destroyed")
	}
	return empty, nil
}

// End sends notice to every attached connection and destroys the session
// regardless of how many are attached. It returns the notified connections.
func (m *BreakoutManager) End(id domain.BreakoutID, notice core.Frame) ([]core.ConnID, error) {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownBreakout
	}

	conns := room.End()
	for _, cid := range conns {
		_ = m.sender.SendFrame(cid, notice)
	}
	log.Info().Str("module", "app.breakouts").Str("room", string(id)).Int("notified", len(conns)).Msg("breakout ended")
	return conns, nil
}

// EndFor ends every session that references uid.
func (m *BreakoutManager) EndFor(uid domain.UserID, notice func(domain.BreakoutID) core.Frame) []EndedBreakout {
	m.mu.RLock()
	ids := make([]domain.BreakoutID, 0)
	for id, room := range m.rooms {
		if room.Breakout().Involves(uid) {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	out := make([]EndedBreakout, 0, len(ids))
	for _, id := range ids {
		conns, err := m.End(id, notice(id))
		if err != nil {
			continue
		}
		out = append(out, EndedBreakout{ID: id, Conns: conns})
	}
	return out
}

func (m *BreakoutManager) List() []core.BreakoutInfo {
	m.mu.RLock()
	out := make([]core.BreakoutInfo, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b core.BreakoutInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *BreakoutManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
