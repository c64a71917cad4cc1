package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConnMeta is what the gateway knows about a connection at accept time.
type ConnMeta struct {
	// Breakout is set for connections accepted on the breakout path.
	Breakout    domain.BreakoutID
	ClientToken string
	// BaseURL is the ws(s)://host the client reached us on.
	BaseURL string
	Cancel  context.CancelFunc
}

type connEntry struct {
	conn core.SignalConnection
	meta ConnMeta
	user domain.UserID
}

// Departure describes an unregistered connection.
type Departure struct {
	User     domain.UserID
	Breakout domain.BreakoutID
	// Last is true when User has no connection left.
	Last bool
}

// Registry owns every accepted transport. Other components address
// connections by id and write through SendFrame.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnID]struct{}),
	}
}

func (r *Registry) Register(conn core.SignalConnection, meta ConnMeta) core.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid := core.ConnID(uuid.NewString())
	for r.conns[cid] != nil {
		cid = core.ConnID(uuid.NewString())
	}
	r.conns[cid] = &connEntry{conn: conn, meta: meta}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("room", string(meta.Breakout)).Str("client", meta.ClientToken).Msg("registered connection")
	return cid
}

// BindIdentity associates cid with a participant. A participant may own
// several connections.
func (r *Registry) BindIdentity(cid core.ConnID, uid domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return ErrUnknownConnection
	}
	if e.user != "" {
		return ErrAlreadySignedIn
	}
	e.user = uid
	set, ok := r.byUser[uid]
	if !ok {
		set = make(map[core.ConnID]struct{})
		r.byUser[uid] = set
	}
	set[cid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("uid", string(uid)).Msg("bound identity")
	return nil
}

func (r *Registry) Has(cid core.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[cid]
	return ok
}

func (r *Registry) IdentityOf(cid core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.user == "" {
		return "", false
	}
	return e.user, true
}

func (r *Registry) Meta(cid core.ConnID) (ConnMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return ConnMeta{}, false
	}
	return e.meta, true
}

// MainConnectionsOf lists the main-channel connections bound to uid.
func (r *Registry) MainConnectionsOf(uid domain.UserID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnID, 0, len(r.byUser[uid]))
	for cid := range r.byUser[uid] {
		if r.conns[cid].meta.Breakout == "" {
			out = append(out, cid)
		}
	}
	return out
}

// SameClient reports whether cid carries the client token of one of uid's
// main-channel connections. An empty token never matches.
func (r *Registry) SameClient(cid core.ConnID, uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.meta.ClientToken == "" {
		return false
	}
	for other := range r.byUser[uid] {
		m := r.conns[other].meta
		if m.Breakout == "" && m.ClientToken == e.meta.ClientToken {
			return true
		}
	}
	return false
}

// Unregister forgets cid and closes its transport. It is idempotent: only the
// first call reports ok.
func (r *Registry) Unregister(cid core.ConnID) (Departure, bool) {
	r.mu.Lock()
	e, ok := r.conns[cid]
	if !ok {
		r.mu.Unlock()
		return Departure{}, false
	}
	delete(r.conns, cid)
	dep := Departure{User: e.user, Breakout: e.meta.Breakout}
	if e.user != "" {
		set := r.byUser[e.user]
		delete(set, cid)
		if len(set) == 0 {
			delete(r.byUser, e.user)
			dep.Last = true
		}
	}
	r.mu.Unlock()

	e.conn.Close()
	if e.meta.Cancel != nil {
		e.meta.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("uid", string(dep.User)).Bool("last", dep.Last).Msg("unregistered connection")
	return dep, true
}

// Close shuts the transport down without forgetting it; the read loop
// unregisters once the socket is gone.
func (r *Registry) Close(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.conn.Close()
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("closed connection")
	return true
}

// SendFrame is best effort: failures are logged and returned, never panicked.
func (r *Registry) SendFrame(cid core.ConnID, f core.Frame) error {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "app.registry").Str("cid", string(cid)).Msg("send to unknown connection")
		return ErrUnknownConnection
	}
	if st := e.conn.State(); st != core.ConnOpen {
		log.Debug().Str("module", "app.registry").Str("cid", string(cid)).Str("state", st.String()).Msg("send to connection that is not open")
		return core.ErrConnClosed
	}
	if err := e.conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("cid", string(cid)).Msg("send failed")
		return err
	}
	return nil
}

// Send encodes v and writes it to cid.
func (r *Registry) Send(cid core.ConnID, v any) error {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode")
		return err
	}
	return r.SendFrame(cid, f)
}

// SendToUser writes f to every main-channel connection of uid.
func (r *Registry) SendToUser(uid domain.UserID, f core.Frame) core.PublishResult {
	return r.fanOut(r.MainConnectionsOf(uid), f)
}

// BroadcastAll writes f to every main-channel connection of every signed-in participant.
func (r *Registry) BroadcastAll(f core.Frame) core.PublishResult {
	return r.BroadcastExcept(f, "")
}

func (r *Registry) BroadcastExcept(f core.Frame, exclude domain.UserID) core.PublishResult {
	r.mu.RLock()
	targets := make([]core.ConnID, 0, len(r.conns))
	for cid, e := range r.conns {
		if e.user == "" || e.user == exclude || e.meta.Breakout != "" {
			continue
		}
		targets = append(targets, cid)
	}
	r.mu.RUnlock()
	return r.fanOut(targets, f)
}

func (r *Registry) fanOut(targets []core.ConnID, f core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, cid := range targets {
		if err := r.SendFrame(cid, f); err != nil {
			if !errors.Is(err, ErrUnknownConnection) {
				res.Dropped = append(res.Dropped, cid)
			}
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.registry").Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	return res
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
