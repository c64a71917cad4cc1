package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Orch       *orch.Orchestrator
	Limiter    *RoomRateLimiter
	ICEServers []webrtc.ICEServer

	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewSignalWSController(cfg *config.Config, o *orch.Orchestrator, ice []webrtc.ICEServer) *SignalWSController {
	origins := NewOriginPolicy(cfg.AllowedOrigins)
	return &SignalWSController{
		Orch:       o,
		Limiter:    NewRoomRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval),
		ICEServers: ice,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: origins.Check,
		},
	}
}

// WsSignalConn is the websocket transport of one connection. Frames are
// queued and written by a single writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu         sync.RWMutex
	state      core.ConnState
	sendClosed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != core.ConnOpen {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) State() core.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close stops accepting frames; writePump flushes what is queued and then
// closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != core.ConnOpen {
		return
	}
	c.state = core.ConnClosing
	c.sendClosed = true
	close(c.send)
}

// finish is called by writePump on exit.
func (c *WsSignalConn) finish() {
	c.mu.Lock()
	c.state = core.ConnClosed
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
}

// HandleUpgrade is the single upgrade entry point. The request path decides
// whether the socket joins the main room or a breakout session.
func (ctl *SignalWSController) HandleUpgrade(ctx context.Context, c *gin.Context) {
	roomID, isBreakout := ctl.breakoutID(c.Request.URL.Path)
	token := c.GetString("client_token")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := newWsSignalConn(ws, ctl.cfg.SendBuffer)
	connCtx, cancel := context.WithCancel(ctx)
	meta := app.ConnMeta{
		ClientToken: token,
		BaseURL:     baseURL(c.Request),
		Cancel:      cancel,
	}
	if isBreakout {
		meta.Breakout = roomID
	}
	cid := ctl.Orch.Connect(conn, meta)
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("client", token).Bool("breakout", isBreakout).Msg("new WS connection")

	go ctl.writePump(connCtx, conn)

	if isBreakout {
		claimed := domain.UserID(c.Query("userId"))
		if err := ctl.Orch.AttachBreakout(cid, roomID, claimed); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Str("room", string(roomID)).Msg("invalid breakout connection attempt")
			ctl.replyError(cid, err)
			ctl.Orch.OnDisconnect(cid)
			return
		}
	}

	go ctl.readPump(connCtx, cid, conn, isBreakout)
}

// breakoutID reports whether path is a breakout upgrade and extracts the id.
func (ctl *SignalWSController) breakoutID(path string) (domain.BreakoutID, bool) {
	prefix := ctl.cfg.BreakoutPrefix
	if path == strings.TrimSuffix(prefix, "/") {
		return "", true
	}
	id, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", false
	}
	return domain.BreakoutID(id), true
}

func baseURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host
}

func (ctl *SignalWSController) reply(cid core.ConnID, v any) {
	_ = ctl.Orch.Registry.Send(cid, v)
}

func (ctl *SignalWSController) replyError(cid core.ConnID, err error) {
	ctl.reply(cid, protocol.NewError(errorMessage(err)))
}
