package signal

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSignIn(cid core.ConnID, r protocol.SignIn) error {
	user, err := ctl.Orch.SignIn(cid, r.Username, r.Role)
	if err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("uid", string(user.ID)).Str("username", user.Username).Msg("signed in")

	ctl.reply(cid, protocol.SignInReply{
		Type:       string(protocol.KindSignIn),
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		ICEServers: ctl.ICEServers,
	})
	ctl.Orch.BroadcastPresence()
	return nil
}

func (ctl *SignalWSController) handleWhoAmI(cid core.ConnID) error {
	user, err := ctl.Orch.CurrentUser(cid)
	if err != nil {
		return err
	}
	ctl.reply(cid, protocol.WhoAmIReply{
		Type:     string(protocol.KindWhoAmI),
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	return nil
}
