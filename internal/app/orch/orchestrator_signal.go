package orch

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Chat broadcasts a chat line from cid to everyone signed in.
func (o *Orchestrator) Chat(cid core.ConnID, text string) error {
	user, err := o.CurrentUser(cid)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return app.ErrEmptyText
	}
	log.Debug().Str("module", "orch").Str("uid", string(user.ID)).Msg("chat message")
	o.broadcast(protocol.Chat{
		Type:      string(protocol.KindSendMessage),
		Sender:    user.Username,
		Text:      text,
		Timestamp: protocol.Timestamp(o.now()),
	})
	return nil
}

// Forward relays an opaque signaling message to recipient's main connections
// with the server-resolved senderId. An offline recipient is only logged.
func (o *Orchestrator) Forward(cid core.ConnID, recipient domain.UserID, raw json.RawMessage) error {
	uid, ok := o.Registry.IdentityOf(cid)
	if !ok {
		return app.ErrNotSignedIn
	}
	f, err := protocol.WithSender(raw, uid)
	if err != nil {
		return err
	}
	res := o.Registry.SendToUser(recipient, f)
	if res.SendTo == 0 {
		log.Info().Str("module", "orch").Str("uid", string(uid)).Str("recipient", string(recipient)).Msg("recipient not found or not connected")
	}
	o.applyPolicy(res)
	return nil
}
