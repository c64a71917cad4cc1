package signal

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// handleForward relays offer, answer, ice-candidate and hang-up frames. The
// payload is opaque to the server.
func (ctl *SignalWSController) handleForward(cid core.ConnID, recipient domain.UserID, raw json.RawMessage) error {
	return ctl.Orch.Forward(cid, recipient, raw)
}
