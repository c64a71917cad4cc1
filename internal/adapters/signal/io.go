package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.finish()
	}()

	write := func(msgType int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(msgType, data)
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			ctl.drain(c, write)
			return
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// drain flushes frames queued before the connection was cancelled.
func (ctl *SignalWSController) drain(c *WsSignalConn, write func(int, []byte) error) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnID, c *WsSignalConn, breakout bool) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		_, bound := ctl.Orch.Registry.IdentityOf(cid)
		if uid, left := ctl.Orch.OnDisconnect(cid); left {
			ctl.Limiter.Forget(string(uid))
		} else if !bound {
			ctl.Limiter.Forget(string(cid))
		}
	}()

	pongWait := ctl.cfg.PongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
		}
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !ctl.dispatch(cid, data, breakout) {
			return
		}
	}
}

// dispatch handles one frame. A panic in a handler only ends this connection.
func (ctl *SignalWSController) dispatch(cid core.ConnID, data []byte, breakout bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("cid", string(cid)).Interface("panic", r).Msg("handler panic")
			ok = false
		}
	}()
	if breakout {
		ctl.handleBreakoutFrame(cid, data)
	} else {
		ctl.handleSignal(cid, data)
	}
	return true
}

// decode parses data and replies with an error for malformed frames.
func (ctl *SignalWSController) decode(cid core.ConnID, data []byte) (protocol.Request, bool) {
	req, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad frame")
		ctl.replyError(cid, err)
		return nil, false
	}
	return req, true
}

func logUnknown(cid core.ConnID, u protocol.Unknown) {
	log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("type", u.Type).Msg("unknown signal")
}

// handleSignal routes frames of the main channel. Everything but sign-in,
// unknown kinds included, requires a signed-in connection.
func (ctl *SignalWSController) handleSignal(cid core.ConnID, data []byte) {
	req, ok := ctl.decode(cid, data)
	if !ok {
		return
	}

	if _, signIn := req.(protocol.SignIn); !signIn {
		if _, bound := ctl.Orch.Registry.IdentityOf(cid); !bound {
			log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("type", string(req.Kind())).Msg("message before sign-in")
			ctl.replyError(cid, app.ErrNotSignedIn)
			return
		}
	}

	var err error
	switch r := req.(type) {
	case protocol.SignIn:
		err = ctl.handleSignIn(cid, r)
	case protocol.WhoAmI:
		err = ctl.handleWhoAmI(cid)
	case protocol.Ping:
		ctl.handlePing(cid)
	case protocol.SendMessage:
		err = ctl.handleChat(cid, r)
	case protocol.StartBroadcast:
		err = ctl.Orch.SetBroadcasting(cid, true)
	case protocol.StopBroadcast:
		err = ctl.Orch.SetBroadcasting(cid, false)
	case protocol.Signal:
		err = ctl.handleForward(cid, r.RecipientID, r.Raw)
	case protocol.HangUp:
		err = ctl.handleForward(cid, r.RecipientID, r.Raw)
	case protocol.CreateBreakout:
		err = ctl.handleCreateBreakout(cid, r)
	case protocol.BreakoutMessage:
		err = ctl.handleBreakoutMessage(cid, r)
	case protocol.BreakoutInfo:
		err = ctl.handleBreakoutInfo(cid, r.RoomID)
	case protocol.EndBreakout:
		err = ctl.handleEndBreakout(cid, r.RoomID)
	case protocol.LeaveBreakout:
		err = app.ErrWrongChannel
	case protocol.Unknown:
		logUnknown(cid, r)
		return
	default:
		log.Warn().Str("module", "signal").Str("type", string(req.Kind())).Msg("unhandled signal")
	}
	ctl.finishRequest(cid, req, err)
}

// handleBreakoutFrame routes frames of a breakout connection. Only
// session-scoped kinds are meaningful there.
func (ctl *SignalWSController) handleBreakoutFrame(cid core.ConnID, data []byte) {
	req, ok := ctl.decode(cid, data)
	if !ok {
		return
	}

	var err error
	switch r := req.(type) {
	case protocol.Ping:
		ctl.handlePing(cid)
	case protocol.BreakoutMessage:
		err = ctl.handleBreakoutMessage(cid, r)
	case protocol.BreakoutInfo:
		err = ctl.handleBreakoutInfo(cid, r.RoomID)
	case protocol.LeaveBreakout:
		err = ctl.handleLeaveBreakout(cid, r.RoomID)
	case protocol.EndBreakout:
		err = ctl.handleEndBreakout(cid, r.RoomID)
	case protocol.Unknown:
		logUnknown(cid, r)
		return
	default:
		err = app.ErrWrongChannel
	}
	ctl.finishRequest(cid, req, err)
}

func (ctl *SignalWSController) finishRequest(cid core.ConnID, req protocol.Request, err error) {
	if err == nil {
		return
	}
	ev := log.Warn()
	if errors.Is(err, app.ErrRateLimited) {
		ev = log.Debug()
	}
	ev.Err(err).Str("module", "signal").Str("cid", string(cid)).Str("type", string(req.Kind())).Msg("request rejected")
	ctl.replyError(cid, err)
}

// limiterKey is the participant behind cid, or cid itself for anonymous
// breakout observers.
func (ctl *SignalWSController) limiterKey(cid core.ConnID) string {
	if uid, ok := ctl.Orch.Registry.IdentityOf(cid); ok {
		return string(uid)
	}
	return string(cid)
}
