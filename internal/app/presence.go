package app

import (
	"strings"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence is the set of signed-in participants. It enforces the
// single-instructor and unique-name rules and keeps sign-in order.
type Presence struct {
	mu          sync.RWMutex
	byID        map[domain.UserID]*domain.Participant
	order       []domain.UserID
	defaultName string
	maxNameLen  int
}

func NewPresence(defaultName string, maxNameLen int) *Presence {
	if defaultName == "" {
		defaultName = "Anonymous"
	}
	return &Presence{
		byID:        make(map[domain.UserID]*domain.Participant),
		defaultName: defaultName,
		maxNameLen:  maxNameLen,
	}
}

func (p *Presence) TrySignIn(id domain.UserID, requested string, role domain.Role) (domain.User, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = p.defaultName
	}
	if err := domain.ValidateUsername(name, p.maxNameLen); err != nil {
		return domain.User{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[id]; ok {
		return domain.User{}, ErrAlreadySignedIn
	}
	taken := make(map[string]struct{}, len(p.byID))
	for _, pt := range p.byID {
		if role == domain.RoleInstructor && pt.User.Role == domain.RoleInstructor {
			log.Warn().Str("module", "app.presence").Str("uid", string(id)).Msg("second instructor rejected")
			return domain.User{}, ErrInstructorPresent
		}
		taken[pt.User.Username] = struct{}{}
	}

	user := domain.NewUser(id, domain.UniqueUsername(name, taken, p.maxNameLen), role)
	p.byID[id] = domain.NewParticipant(user)
	p.order = append(p.order, id)
	log.Info().Str("module", "app.presence").Str("uid", string(id)).Str("username", user.Username).Str("role", string(role)).Msg("signed in")
	return *user, nil
}

func (p *Presence) Remove(id domain.UserID) (domain.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.byID[id]
	if !ok {
		return domain.User{}, false
	}
	delete(p.byID, id)
	for i, uid := range p.order {
		if uid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.presence").Str("uid", string(id)).Str("username", pt.User.Username).Msg("signed out")
	return pt.User, true
}

func (p *Presence) Get(id domain.UserID) (domain.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pt, ok := p.byID[id]
	if !ok {
		return domain.User{}, false
	}
	return pt.User, true
}

func (p *Presence) Online(id domain.UserID) bool {
	_, ok := p.Get(id)
	return ok
}

func (p *Presence) SetBroadcasting(id domain.UserID, on bool) (domain.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.byID[id]
	if !ok {
		return domain.User{}, false
	}
	pt.Broadcasting = on
	return pt.User, true
}

// Snapshot lists participants in sign-in order.
func (p *Presence) Snapshot() []core.ParticipantDTO {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.ParticipantDTO, 0, len(p.order))
	for _, id := range p.order {
		pt := p.byID[id]
		out = append(out, core.ParticipantDTO{
			ID:             pt.User.ID,
			Username:       pt.User.Username,
			Role:           pt.User.Role,
			IsBroadcasting: pt.Broadcasting,
		})
	}
	return out
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}
