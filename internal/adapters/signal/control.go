package signal

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handlePing(cid core.ConnID) {
	ctl.reply(cid, protocol.Pong{Type: protocol.TypePong})
}
