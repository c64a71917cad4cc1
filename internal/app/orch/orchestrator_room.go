package orch

import (
	"strings"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// BreakoutURL is where clients of cid should open the breakout socket.
func (o *Orchestrator) BreakoutURL(cid core.ConnID, id domain.BreakoutID) string {
	base := o.PublicURL
	if base == "" {
		if meta, ok := o.Registry.Meta(cid); ok {
			base = meta.BaseURL
		}
	}
	return strings.TrimSuffix(base, "/") + o.BreakoutPrefix + string(id)
}

// CreateBreakout opens a session between the instructor behind cid and
// studentID, invites the student and confirms to the instructor.
func (o *Orchestrator) CreateBreakout(cid core.ConnID, studentID domain.UserID) (core.BreakoutService, error) {
	user, err := o.CurrentUser(cid)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleInstructor {
		return nil, app.ErrNotInstructor
	}
	room, err := o.Breakouts.Create(user.ID, studentID)
	if err != nil {
		return nil, err
	}

	b := room.Breakout()
	invite := protocol.BreakoutInvite{
		Type:        protocol.TypeJoinBreakout,
		RoomID:      b.ID,
		Instructor:  b.Instructor,
		Student:     b.Student,
		BreakoutURL: o.BreakoutURL(cid, b.ID),
	}
	f, err := protocol.Encode(invite)
	if err != nil {
		return nil, err
	}
	o.applyPolicy(o.Registry.SendToUser(studentID, f))

	invite.Type = protocol.TypeBreakoutCreated
	_ = o.Registry.Send(cid, invite)
	return room, nil
}

// AttachBreakout hands a breakout-path connection to its session. claimed,
// when it names one of the session's two participants and the connection
// comes from the same client as that participant's main connection, binds
// the connection to that participant.
func (o *Orchestrator) AttachBreakout(cid core.ConnID, id domain.BreakoutID, claimed domain.UserID) error {
	room, ok := o.Breakouts.Get(id)
	if !ok {
		return app.ErrUnknownBreakout
	}
	if err := o.Breakouts.Attach(id, cid); err != nil {
		return err
	}
	if claimed == "" {
		return nil
	}
	o.identity.Lock()
	defer o.identity.Unlock()
	if !room.Breakout().Involves(claimed) || !o.Presence.Online(claimed) || !o.Registry.SameClient(cid, claimed) {
		log.Warn().Str("module", "orch").Str("cid", string(cid)).Str("uid", string(claimed)).Msg("ignoring identity claim on breakout connection")
		return nil
	}
	return o.Registry.BindIdentity(cid, claimed)
}

// resolveBreakout finds the session a breakout-scoped message targets and
// checks that cid may act on it.
func (o *Orchestrator) resolveBreakout(cid core.ConnID, roomID domain.BreakoutID) (core.BreakoutService, error) {
	meta, ok := o.Registry.Meta(cid)
	if !ok {
		return nil, app.ErrUnknownConnection
	}
	if meta.Breakout != "" {
		if roomID != "" && roomID != meta.Breakout {
			return nil, app.ErrUnknownBreakout
		}
		room, ok := o.Breakouts.Get(meta.Breakout)
		if !ok {
			return nil, app.ErrUnknownBreakout
		}
		if !room.IsAttached(cid) {
			return nil, app.ErrNotAttached
		}
		return room, nil
	}

	uid, ok := o.Registry.IdentityOf(cid)
	if !ok {
		return nil, app.ErrNotSignedIn
	}
	room, ok := o.Breakouts.Get(roomID)
	if !ok {
		return nil, app.ErrUnknownBreakout
	}
	if !room.Breakout().Involves(uid) {
		return nil, app.ErrNotAttached
	}
	return room, nil
}

// BreakoutMessage relays a chat line inside one session only.
func (o *Orchestrator) BreakoutMessage(cid core.ConnID, roomID domain.BreakoutID, sender, text string) error {
	room, err := o.resolveBreakout(cid, roomID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return app.ErrEmptyText
	}
	if user, err := o.CurrentUser(cid); err == nil {
		sender = user.Username
	} else if strings.TrimSpace(sender) == "" {
		sender = "Unknown"
	}

	id := room.Breakout().ID
	f, err := protocol.Encode(protocol.BreakoutChat{
		Type:      string(protocol.KindBreakoutMessage),
		RoomID:    id,
		Sender:    sender,
		Text:      text,
		Timestamp: protocol.Timestamp(o.now()),
	})
	if err != nil {
		return err
	}
	res, err := o.Breakouts.Relay(id, f)
	if err != nil {
		return err
	}
	o.applyPolicy(res)
	return nil
}

// BreakoutDetails answers breakout-room-info.
func (o *Orchestrator) BreakoutDetails(cid core.ConnID, roomID domain.BreakoutID) (*domain.Breakout, error) {
	room, err := o.resolveBreakout(cid, roomID)
	if err != nil {
		return nil, err
	}
	return room.Breakout(), nil
}

// LeaveBreakout detaches a breakout connection and closes it.
func (o *Orchestrator) LeaveBreakout(cid core.ConnID, roomID domain.BreakoutID) error {
	meta, ok := o.Registry.Meta(cid)
	if !ok {
		return app.ErrUnknownConnection
	}
	if meta.Breakout == "" {
		return app.ErrWrongChannel
	}
	if roomID != "" && roomID != meta.Breakout {
		return app.ErrUnknownBreakout
	}
	if _, err := o.Breakouts.Leave(meta.Breakout, cid); err != nil {
		return err
	}
	o.Registry.Close(cid)
	return nil
}

// EndBreakout tears a session down on behalf of cid.
func (o *Orchestrator) EndBreakout(cid core.ConnID, roomID domain.BreakoutID) error {
	room, err := o.resolveBreakout(cid, roomID)
	if err != nil {
		return err
	}
	return o.EndBreakoutByID(room.Breakout().ID)
}

// EndBreakoutByID notifies every attached connection, destroys the session
// and closes the notified connections.
func (o *Orchestrator) EndBreakoutByID(id domain.BreakoutID) error {
	conns, err := o.Breakouts.End(id, endNotice(id))
	if err != nil {
		return err
	}
	for _, cid := range conns {
		o.Registry.Close(cid)
	}
	return nil
}

func (o *Orchestrator) endBreakoutsFor(uid domain.UserID) {
	for _, ended := range o.Breakouts.EndFor(uid, endNotice) {
		for _, cid := range ended.Conns {
			o.Registry.Close(cid)
		}
		log.Info().Str("module", "orch").Str("room", string(ended.ID)).Str("uid", string(uid)).Msg("breakout ended with participant")
	}
}

func endNotice(id domain.BreakoutID) core.Frame {
	f, err := protocol.Encode(protocol.BreakoutEnded{Type: string(protocol.KindEndBreakout), RoomID: id})
	if err != nil {
		return core.Frame(`{"type":"end-breakout-room"}`)
	}
	return f
}
