package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func (rl *RoomRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

func newControllerServer(t *testing.T) (*SignalWSController, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	reg := app.NewRegistry()
	presence := app.NewPresence(cfg.DefaultUsername, cfg.MaxUsernameLen)
	o := &orch.Orchestrator{
		Registry:       reg,
		Presence:       presence,
		Breakouts:      app.NewBreakoutManager(presence, reg),
		Policy:         app.SimplePolicy{},
		BreakoutPrefix: cfg.BreakoutPrefix,
	}
	ctl := NewSignalWSController(cfg, o, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleUpgrade(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return ctl, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestLimiterForgetsDepartedParticipants(t *testing.T) {
	ctl, url := newControllerServer(t)

	for range 5 {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		_ = conn.WriteJSON(map[string]any{"type": "sign-in", "username": "Ann", "role": "student"})
		readType(t, conn, "sign-in")
		_ = conn.WriteJSON(map[string]any{"type": "send-message", "text": "hi"})
		readType(t, conn, "send-message")
		_ = conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctl.Orch.Presence.Count() == 0 && ctl.Orch.Registry.Count() == 0 && ctl.Limiter.size() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("presence=%d registry=%d limiter keys=%d after every participant left",
		ctl.Orch.Presence.Count(), ctl.Orch.Registry.Count(), ctl.Limiter.size())
}

func TestUnknownKindBeforeSignInRejected(t *testing.T) {
	_, url := newControllerServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	_ = conn.WriteJSON(map[string]any{"type": "no-such-kind"})
	reply := readType(t, conn, "error")
	if reply["message"] != app.ErrNotSignedIn.Error() {
		t.Fatalf("reply = %v", reply)
	}
}
