package orch

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator coordinates the connection registry, presence and breakout
// rooms. It only ever writes through the registry.
type Orchestrator struct {
	Registry  *app.Registry
	Presence  *app.Presence
	Breakouts *app.BreakoutManager
	Policy    app.Policy

	// BreakoutPrefix is the upgrade path prefix of breakout connections.
	BreakoutPrefix string
	// PublicURL overrides the per-connection base URL when set.
	PublicURL string
	Now       func() time.Time

	// identity orders binding a connection to a participant against removing
	// that participant on disconnect.
	identity sync.Mutex
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect registers a freshly accepted transport as unauthenticated.
func (o *Orchestrator) Connect(conn core.SignalConnection, meta app.ConnMeta) core.ConnID {
	return o.Registry.Register(conn, meta)
}

func (o *Orchestrator) broadcast(v any) {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode broadcast")
		return
	}
	o.applyPolicy(o.Registry.BroadcastAll(f))
}

func (o *Orchestrator) applyPolicy(res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("cid", string(slow)).Msg("kicking slow connection")
			o.Registry.Close(slow)
		case app.DropFrame, app.NoAction:
		}
	}
}
