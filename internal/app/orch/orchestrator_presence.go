package orch

import (
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SignIn admits cid as a participant whose id is the connection id.
// The caller replies to the client and then calls BroadcastPresence.
func (o *Orchestrator) SignIn(cid core.ConnID, username, role string) (domain.User, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	if !o.Registry.Has(cid) {
		return domain.User{}, app.ErrUnknownConnection
	}
	if _, ok := o.Registry.IdentityOf(cid); ok {
		return domain.User{}, app.ErrAlreadySignedIn
	}

	user, err := o.Presence.TrySignIn(domain.UserID(cid), username, r)
	if err != nil {
		return domain.User{}, err
	}
	if err := o.Registry.BindIdentity(cid, user.ID); err != nil {
		// connection went away between the two steps
		o.Presence.Remove(user.ID)
		return domain.User{}, err
	}
	return user, nil
}

// BroadcastPresence pushes update-users to every signed-in connection.
func (o *Orchestrator) BroadcastPresence() {
	o.broadcast(protocol.UpdateUsers{
		Type:  protocol.TypeUpdateUsers,
		Users: o.Presence.Snapshot(),
	})
}

// CurrentUser resolves the participant behind cid.
func (o *Orchestrator) CurrentUser(cid core.ConnID) (domain.User, error) {
	uid, ok := o.Registry.IdentityOf(cid)
	if !ok {
		return domain.User{}, app.ErrNotSignedIn
	}
	user, ok := o.Presence.Get(uid)
	if !ok {
		return domain.User{}, app.ErrNotSignedIn
	}
	return user, nil
}

// SetBroadcasting flips the participant's broadcasting flag and tells the others.
func (o *Orchestrator) SetBroadcasting(cid core.ConnID, on bool) error {
	user, err := o.CurrentUser(cid)
	if err != nil {
		return err
	}
	o.Presence.SetBroadcasting(user.ID, on)

	var msg any = protocol.PeerEvent{Type: protocol.TypeBroadcastEnded, SenderID: user.ID}
	if on {
		msg = protocol.BroadcastRequest{
			Type:           protocol.TypeBroadcastRequest,
			SenderID:       user.ID,
			SenderUsername: user.Username,
		}
	}
	f, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	o.applyPolicy(o.Registry.BroadcastExcept(f, user.ID))
	o.BroadcastPresence()
	log.Info().Str("module", "orch").Str("uid", string(user.ID)).Bool("on", on).Msg("broadcasting changed")
	return nil
}

// OnDisconnect runs the teardown of cid exactly once, however often it is
// called. It reports the participant that left presence with this connection.
func (o *Orchestrator) OnDisconnect(cid core.ConnID) (domain.UserID, bool) {
	o.identity.Lock()
	dep, ok := o.Registry.Unregister(cid)
	var (
		user    domain.User
		removed bool
	)
	if ok && dep.Last && dep.User != "" {
		user, removed = o.Presence.Remove(dep.User)
	}
	o.identity.Unlock()
	if !ok {
		return "", false
	}

	if dep.Breakout != "" {
		if _, err := o.Breakouts.Leave(dep.Breakout, cid); err != nil &&
			!errors.Is(err, app.ErrUnknownBreakout) && !errors.Is(err, app.ErrNotAttached) {
			log.Warn().Err(err).Str("module", "orch").Str("cid", string(cid)).Msg("breakout leave on disconnect")
		}
	}

	if !removed {
		return "", false
	}
	log.Info().Str("module", "orch").Str("uid", string(user.ID)).Str("username", user.Username).Msg("participant left")

	o.endBreakoutsFor(user.ID)

	if f, err := protocol.Encode(protocol.PeerEvent{Type: protocol.TypeUserDisconnected, SenderID: user.ID}); err == nil {
		o.applyPolicy(o.Registry.BroadcastExcept(f, user.ID))
	}
	o.BroadcastPresence()
	return user.ID, true
}
