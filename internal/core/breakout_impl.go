package core

import (
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// breakoutImpl is a threadsafe in-memory breakout session.
// It holds connection ids only and never closes adapter-owned resources.
type breakoutImpl struct {
	info     *domain.Breakout
	mu       sync.RWMutex
	state    BreakoutState
	attached map[ConnID]struct{}
	order    []ConnID
}

func NewBreakoutService(b *domain.Breakout) BreakoutService {
	return &breakoutImpl{
		info:     b,
		attached: make(map[ConnID]struct{}),
	}
}

func (r *breakoutImpl) Breakout() *domain.Breakout { return r.info }

func (r *breakoutImpl) State() BreakoutState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *breakoutImpl) Info() BreakoutInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return BreakoutInfo{
		ID:         r.info.ID,
		Instructor: r.info.Instructor,
		Student:    r.info.Student,
		State:      r.state.String(),
		Attached:   len(r.attached),
	}
}

func (r *breakoutImpl) Attach(cid ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == BreakoutEnded {
		return ErrBreakoutEnded
	}
	if _, ok := r.attached[cid]; !ok {
		r.attached[cid] = struct{}{}
		r.order = append(r.order, cid)
	}
	r.state = BreakoutActive
	log.Info().Str("module", "core.breakout").Str("room", string(r.info.ID)).Str("cid", string(cid)).Msg("connection attached")
	return nil
}

func (r *breakoutImpl) Detach(cid ConnID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == BreakoutEnded {
		return false, ErrBreakoutEnded
	}
	if _, ok := r.attached[cid]; !ok {
		return false, ErrNotAttached
	}
	delete(r.attached, cid)
	for i, id := range r.order {
		if id == cid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.breakout").Str("room", string(r.info.ID)).Str("cid", string(cid)).Msg("connection detached")
	return len(r.attached) == 0, nil
}

func (r *breakoutImpl) IsAttached(cid ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.attached[cid]
	return ok
}

func (r *breakoutImpl) Attached() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *breakoutImpl) Broadcast(s Sender, data Frame) PublishResult {
	res := PublishResult{}
	if r.State() == BreakoutEnded {
		return res
	}
	for _, cid := range r.Attached() {
		if err := s.SendFrame(cid, data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.breakout").Str("room", string(r.info.ID)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *breakoutImpl) End() []ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == BreakoutEnded {
		return nil
	}
	r.state = BreakoutEnded
	out := r.order
	r.order = nil
	r.attached = make(map[ConnID]struct{})
	return out
}
