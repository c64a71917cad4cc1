package signal

import (
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleChat(cid core.ConnID, r protocol.SendMessage) error {
	if !ctl.Limiter.Allow(ctl.limiterKey(cid)) {
		return app.ErrRateLimited
	}
	return ctl.Orch.Chat(cid, r.Text)
}
