package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type memConn struct {
	mu     sync.Mutex
	frames []core.Frame
	state  core.ConnState
	full   bool
}

func (c *memConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != core.ConnOpen {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *memConn) State() core.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *memConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = core.ConnClosed
}

func (c *memConn) msgs() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		_ = json.Unmarshal(f, &m)
		out = append(out, m)
	}
	return out
}

func (c *memConn) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.msgs() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *memConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func newTestOrchestrator() *Orchestrator {
	reg := app.NewRegistry()
	presence := app.NewPresence("Anonymous", 36)
	return &Orchestrator{
		Registry:       reg,
		Presence:       presence,
		Breakouts:      app.NewBreakoutManager(presence, reg),
		Policy:         app.SimplePolicy{},
		BreakoutPrefix: "/breakout/",
		Now:            func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func (o *Orchestrator) testSignIn(t *testing.T, name, role string) (core.ConnID, *memConn, domain.User) {
	t.Helper()
	c := &memConn{}
	cid := o.Connect(c, app.ConnMeta{BaseURL: "ws://example.test", ClientToken: "client-" + name})
	u, err := o.SignIn(cid, name, role)
	if err != nil {
		t.Fatalf("SignIn(%s): %v", name, err)
	}
	o.BroadcastPresence()
	return cid, c, u
}

func TestSignInRoundTrip(t *testing.T) {
	o := newTestOrchestrator()
	cid, c, u := o.testSignIn(t, "Bob", "student")
	if u.Username != "Bob" || string(u.ID) != string(cid) || u.Role != domain.RoleStudent {
		t.Fatalf("user = %+v", u)
	}
	updates := c.ofType("update-users")
	if len(updates) != 1 {
		t.Fatalf("update-users count = %d", len(updates))
	}
	users := updates[0]["users"].([]any)
	if len(users) != 1 || users[0].(map[string]any)["id"] != string(u.ID) {
		t.Fatalf("users = %v", users)
	}
	if _, err := o.SignIn(cid, "Bob", "student"); !errors.Is(err, app.ErrAlreadySignedIn) {
		t.Fatalf("second sign-in err = %v", err)
	}
}

func TestSecondInstructorRejected(t *testing.T) {
	o := newTestOrchestrator()
	o.testSignIn(t, "Teach", "instructor")
	c := &memConn{}
	cid := o.Connect(c, app.ConnMeta{})
	if _, err := o.SignIn(cid, "Other", "instructor"); !errors.Is(err, app.ErrInstructorPresent) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := o.Registry.IdentityOf(cid); ok {
		t.Fatal("rejected connection was signed in")
	}
	if _, err := o.SignIn(cid, "x", "admin"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("bad role err = %v", err)
	}
}

func TestDisconnectRemovesParticipantOnce(t *testing.T) {
	o := newTestOrchestrator()
	_, watcher, _ := o.testSignIn(t, "Watcher", "student")
	cid, _, gone := o.testSignIn(t, "Gone", "student")
	watcher.reset()

	o.OnDisconnect(cid)
	o.OnDisconnect(cid)

	if got := watcher.ofType("user-disconnected"); len(got) != 1 || got[0]["senderId"] != string(gone.ID) {
		t.Fatalf("user-disconnected = %v", got)
	}
	updates := watcher.ofType("update-users")
	if len(updates) != 1 {
		t.Fatalf("update-users after disconnect = %d, want 1", len(updates))
	}
	for _, u := range updates[0]["users"].([]any) {
		if u.(map[string]any)["id"] == string(gone.ID) {
			t.Fatal("departed participant still listed")
		}
	}
}

func TestChat(t *testing.T) {
	o := newTestOrchestrator()
	cid, a, _ := o.testSignIn(t, "Alice", "student")
	_, b, _ := o.testSignIn(t, "Bob", "student")

	if err := o.Chat(cid, "  "); !errors.Is(err, app.ErrEmptyText) {
		t.Fatalf("empty chat err = %v", err)
	}
	if err := o.Chat(cid, "hello"); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*memConn{a, b} {
		got := c.ofType("send-message")
		if len(got) != 1 || got[0]["sender"] != "Alice" || got[0]["text"] != "hello" || got[0]["timestamp"] != "2024-01-02T03:04:05.000Z" {
			t.Fatalf("chat = %v", got)
		}
	}

	anon := o.Connect(&memConn{}, app.ConnMeta{})
	if err := o.Chat(anon, "spoof"); !errors.Is(err, app.ErrNotSignedIn) {
		t.Fatalf("unauthenticated chat err = %v", err)
	}
}

func TestForwardSignal(t *testing.T) {
	o := newTestOrchestrator()
	acid, a, alice := o.testSignIn(t, "Alice", "student")
	_, b, bob := o.testSignIn(t, "Bob", "student")
	_, c, _ := o.testSignIn(t, "Carol", "student")
	a.reset()
	b.reset()
	c.reset()

	raw := json.RawMessage(`{"type":"offer","recipientId":"` + string(bob.ID) + `","payload":{"sdp":"v=0"}}`)
	if err := o.Forward(acid, bob.ID, raw); err != nil {
		t.Fatal(err)
	}
	got := b.ofType("offer")
	if len(got) != 1 || got[0]["senderId"] != string(alice.ID) {
		t.Fatalf("forwarded = %v", got)
	}
	if got[0]["payload"].(map[string]any)["sdp"] != "v=0" {
		t.Fatal("payload modified")
	}
	if len(c.msgs()) != 0 || len(a.msgs()) != 0 {
		t.Fatal("signal leaked to non-recipient")
	}

	if err := o.Forward(acid, "offline", raw); err != nil {
		t.Fatalf("offline recipient err = %v", err)
	}
	if len(a.msgs()) != 0 {
		t.Fatal("sender got a reply for offline recipient")
	}
}

func TestBackpressureKicksSlowConnection(t *testing.T) {
	o := newTestOrchestrator()
	cid, _, _ := o.testSignIn(t, "Alice", "student")
	_, slow, _ := o.testSignIn(t, "Slow", "student")
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	if err := o.Chat(cid, "hi"); err != nil {
		t.Fatal(err)
	}
	if slow.State() != core.ConnClosed {
		t.Fatal("slow connection not closed by policy")
	}
}

func TestBreakoutFlow(t *testing.T) {
	o := newTestOrchestrator()
	icid, inst, _ := o.testSignIn(t, "Teach", "instructor")
	scid, stud, student := o.testSignIn(t, "Bob", "student")
	_, outsider, _ := o.testSignIn(t, "Eve", "student")

	if _, err := o.CreateBreakout(scid, student.ID); !errors.Is(err, app.ErrNotInstructor) {
		t.Fatalf("student create err = %v", err)
	}
	if _, err := o.CreateBreakout(icid, "ghost"); !errors.Is(err, app.ErrUserOffline) {
		t.Fatalf("offline create err = %v", err)
	}
	room, err := o.CreateBreakout(icid, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	id := room.Breakout().ID

	join := stud.ofType("join-breakout-room")
	if len(join) != 1 || join[0]["roomId"] != string(id) || join[0]["breakoutUrl"] != "ws://example.test/breakout/"+string(id) {
		t.Fatalf("join = %v", join)
	}
	if created := inst.ofType("breakout-room-created"); len(created) != 1 {
		t.Fatalf("instructor confirmation = %v", created)
	}
	if len(outsider.ofType("join-breakout-room")) != 0 {
		t.Fatal("invite leaked")
	}

	// breakout connections
	bi, bs, bx := &memConn{}, &memConn{}, &memConn{}
	bicid := o.Connect(bi, app.ConnMeta{Breakout: id, ClientToken: "client-Teach"})
	bscid := o.Connect(bs, app.ConnMeta{Breakout: id, ClientToken: "client-Bob"})
	if err := o.AttachBreakout(bicid, id, domain.UserID(icid)); err != nil {
		t.Fatal(err)
	}
	if err := o.AttachBreakout(bscid, id, student.ID); err != nil {
		t.Fatal(err)
	}
	bxcid := o.Connect(bx, app.ConnMeta{Breakout: "nope"})
	if err := o.AttachBreakout(bxcid, "nope", ""); !errors.Is(err, app.ErrUnknownBreakout) {
		t.Fatalf("unknown attach err = %v", err)
	}

	if err := o.BreakoutMessage(bicid, id, "spoofed", "psst"); err != nil {
		t.Fatal(err)
	}
	got := bs.ofType("breakout-message")
	if len(got) != 1 || got[0]["sender"] != "Teach" || got[0]["text"] != "psst" {
		t.Fatalf("breakout message = %v", got)
	}
	if len(outsider.ofType("breakout-message")) != 0 || len(stud.ofType("breakout-message")) != 0 {
		t.Fatal("breakout message leaked outside the session")
	}

	// an outsider on the main channel cannot post into the session
	ocid := o.Registry.MainConnectionsOf(domain.UserID(mustID(t, o, "Eve")))[0]
	if err := o.BreakoutMessage(ocid, id, "", "hi"); !errors.Is(err, app.ErrNotAttached) {
		t.Fatalf("outsider err = %v", err)
	}

	if err := o.EndBreakout(bscid, ""); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*memConn{bi, bs} {
		if len(c.ofType("end-breakout-room")) != 1 {
			t.Fatalf("end notice missing: %v", c.msgs())
		}
		if c.State() != core.ConnClosed {
			t.Fatal("breakout connection left open after end")
		}
	}
	if err := o.BreakoutMessage(icid, id, "", "late"); !errors.Is(err, app.ErrUnknownBreakout) {
		t.Fatalf("late message err = %v", err)
	}
}

func mustID(t *testing.T, o *Orchestrator, name string) domain.UserID {
	t.Helper()
	for _, u := range o.Presence.Snapshot() {
		if u.Username == name {
			return u.ID
		}
	}
	t.Fatalf("no participant %q", name)
	return ""
}

func TestParticipantLossEndsBreakout(t *testing.T) {
	o := newTestOrchestrator()
	icid, _, _ := o.testSignIn(t, "Teach", "instructor")
	scid, _, student := o.testSignIn(t, "Bob", "student")
	room, err := o.CreateBreakout(icid, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	id := room.Breakout().ID
	bi := &memConn{}
	bicid := o.Connect(bi, app.ConnMeta{Breakout: id})
	if err := o.AttachBreakout(bicid, id, ""); err != nil {
		t.Fatal(err)
	}

	o.OnDisconnect(scid)

	if _, ok := o.Breakouts.Get(id); ok {
		t.Fatal("breakout survived its student")
	}
	if len(bi.ofType("end-breakout-room")) != 1 || bi.State() != core.ConnClosed {
		t.Fatal("attached connection not notified and closed")
	}
}

func TestLeaveBreakout(t *testing.T) {
	o := newTestOrchestrator()
	icid, _, _ := o.testSignIn(t, "Teach", "instructor")
	_, _, student := o.testSignIn(t, "Bob", "student")
	room, _ := o.CreateBreakout(icid, student.ID)
	id := room.Breakout().ID

	c := &memConn{}
	cid := o.Connect(c, app.ConnMeta{Breakout: id})
	_ = o.AttachBreakout(cid, id, "")

	if err := o.LeaveBreakout(icid, id); !errors.Is(err, app.ErrWrongChannel) {
		t.Fatalf("main channel leave err = %v", err)
	}
	if err := o.LeaveBreakout(cid, id); err != nil {
		t.Fatal(err)
	}
	if c.State() != core.ConnClosed {
		t.Fatal("left connection not closed")
	}
	if _, ok := o.Breakouts.Get(id); ok {
		t.Fatal("empty breakout not destroyed")
	}
	// the read loop still unregisters afterwards
	o.OnDisconnect(cid)
}

func TestBroadcastingFlag(t *testing.T) {
	o := newTestOrchestrator()
	acid, a, alice := o.testSignIn(t, "Alice", "student")
	_, b, _ := o.testSignIn(t, "Bob", "student")
	a.reset()
	b.reset()

	if err := o.SetBroadcasting(acid, true); err != nil {
		t.Fatal(err)
	}
	req := b.ofType("broadcast-request")
	if len(req) != 1 || req[0]["senderId"] != string(alice.ID) || req[0]["senderUsername"] != "Alice" {
		t.Fatalf("broadcast-request = %v", req)
	}
	if len(a.ofType("broadcast-request")) != 0 {
		t.Fatal("sender received its own broadcast-request")
	}
	if err := o.SetBroadcasting(acid, false); err != nil {
		t.Fatal(err)
	}
	if len(b.ofType("broadcast-ended")) != 1 {
		t.Fatal("broadcast-ended missing")
	}
}

func TestOnDisconnectReportsDeparture(t *testing.T) {
	o := newTestOrchestrator()
	cid, _, u := o.testSignIn(t, "Ann", "student")
	anon := o.Connect(&memConn{}, app.ConnMeta{})

	if uid, left := o.OnDisconnect(anon); left || uid != "" {
		t.Fatalf("anonymous connection reported %q %v", uid, left)
	}
	if uid, left := o.OnDisconnect(cid); !left || uid != u.ID {
		t.Fatalf("OnDisconnect = %q %v, want %q true", uid, left, u.ID)
	}
	if _, left := o.OnDisconnect(cid); left {
		t.Fatal("second teardown reported a departure")
	}
}

func TestBreakoutClaimRequiresSameClient(t *testing.T) {
	o := newTestOrchestrator()
	icid, _, _ := o.testSignIn(t, "Teach", "instructor")
	_, _, student := o.testSignIn(t, "Bob", "student")
	room, err := o.CreateBreakout(icid, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	id := room.Breakout().ID

	stranger := o.Connect(&memConn{}, app.ConnMeta{Breakout: id, ClientToken: "someone-else"})
	if err := o.AttachBreakout(stranger, id, student.ID); err != nil {
		t.Fatal(err)
	}
	if _, bound := o.Registry.IdentityOf(stranger); bound {
		t.Fatal("claim from another client was honoured")
	}

	tokenless := o.Connect(&memConn{}, app.ConnMeta{Breakout: id})
	if err := o.AttachBreakout(tokenless, id, student.ID); err != nil {
		t.Fatal(err)
	}
	if _, bound := o.Registry.IdentityOf(tokenless); bound {
		t.Fatal("claim without a client token was honoured")
	}

	own := o.Connect(&memConn{}, app.ConnMeta{Breakout: id, ClientToken: "client-Bob"})
	if err := o.AttachBreakout(own, id, student.ID); err != nil {
		t.Fatal(err)
	}
	if uid, bound := o.Registry.IdentityOf(own); !bound || uid != student.ID {
		t.Fatalf("claim from the same client: %q %v", uid, bound)
	}
}

// A claim racing the participant's last disconnect must never leave a
// connection bound to someone who is no longer present.
func TestBreakoutClaimRacesDisconnect(t *testing.T) {
	for range 100 {
		o := newTestOrchestrator()
		icid, _, _ := o.testSignIn(t, "Teach", "instructor")
		scid, _, student := o.testSignIn(t, "Bob", "student")
		room, err := o.CreateBreakout(icid, student.ID)
		if err != nil {
			t.Fatal(err)
		}
		id := room.Breakout().ID
		bcid := o.Connect(&memConn{}, app.ConnMeta{Breakout: id, ClientToken: "client-Bob"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = o.AttachBreakout(bcid, id, student.ID)
		}()
		go func() {
			defer wg.Done()
			o.OnDisconnect(scid)
		}()
		wg.Wait()

		if uid, bound := o.Registry.IdentityOf(bcid); bound && !o.Presence.Online(uid) {
			t.Fatalf("connection bound to departed participant %q", uid)
		}
	}
}
