package signal

import (
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCreateBreakout(cid core.ConnID, r protocol.CreateBreakout) error {
	if !ctl.Limiter.Allow(ctl.limiterKey(cid)) {
		return app.ErrRateLimited
	}
	room, err := ctl.Orch.CreateBreakout(cid, r.Student.ID)
	if err != nil {
		return err
	}
	b := room.Breakout()
	log.Info().Str("module", "signal").Str("room", string(b.ID)).Str("instructor", string(b.Instructor.ID)).Str("student", string(b.Student.ID)).Msg("breakout created")
	return nil
}

func (ctl *SignalWSController) handleBreakoutMessage(cid core.ConnID, r protocol.BreakoutMessage) error {
	if !ctl.Limiter.Allow(ctl.limiterKey(cid)) {
		return app.ErrRateLimited
	}
	return ctl.Orch.BreakoutMessage(cid, r.RoomID, r.Sender, r.Text)
}

func (ctl *SignalWSController) handleBreakoutInfo(cid core.ConnID, roomID domain.BreakoutID) error {
	b, err := ctl.Orch.BreakoutDetails(cid, roomID)
	if err != nil {
		return err
	}
	ctl.reply(cid, protocol.BreakoutConfirmed{
		Type:       protocol.TypeBreakoutConfirmed,
		RoomID:     b.ID,
		Instructor: b.Instructor,
		Student:    b.Student,
	})
	return nil
}

func (ctl *SignalWSController) handleLeaveBreakout(cid core.ConnID, roomID domain.BreakoutID) error {
	if err := ctl.Orch.LeaveBreakout(cid, roomID); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("left breakout")
	return nil
}

func (ctl *SignalWSController) handleEndBreakout(cid core.ConnID, roomID domain.BreakoutID) error {
	if err := ctl.Orch.EndBreakout(cid, roomID); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("breakout ended")
	return nil
}
