package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/chatsync/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu       sync.Mutex
	states   []ConnectionState
	frames   []string
	notices  []string
	rejected []error
}

func (o *recordingObserver) OnStateChange(update ConnectionStateUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, update.State)
}

func (o *recordingObserver) OnFrame(raw string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, raw)
}

func (o *recordingObserver) OnNotice(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, text)
}

func (o *recordingObserver) OnRejected(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, err)
}

func (o *recordingObserver) snapshot() (states []ConnectionState, frames, notices []string, rejected []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ConnectionState(nil), o.states...),
		append([]string(nil), o.frames...),
		append([]string(nil), o.notices...),
		append([]error(nil), o.rejected...)
}

// runLoop starts loop on its own goroutine for the duration of the test
func runLoop(t *testing.T, loop *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// onLoop runs fn on loop and waits for it to finish
func onLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if !loop.Post(func() {
		defer close(done)
		fn()
	}) {
		t.Errorf("loop stopped")
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("loop handler did not run")
	}
}

type connFixture struct {
	t      *testing.T
	loop   *Loop
	clock  *ManualClock
	dialer *MockDialer
	obs    *recordingObserver
	m      *ConnectionManager
}

func newConnFixture(t *testing.T) *connFixture {
	loop := NewLoop(0)
	runLoop(t, loop)

	f := &connFixture{
		t:      t,
		loop:   loop,
		clock:  NewManualClock(testEpoch),
		dialer: NewMockDialer(),
		obs:    &recordingObserver{},
	}
	endpoint := func(id string) string { return "ws://chat.test/ws/" + id }
	f.m = NewConnectionManager(endpoint, f.dialer, f.clock, func(fn func()) { loop.Post(fn) }, f.obs)
	return f
}

func (f *connFixture) do(fn func()) {
	onLoop(f.t, f.loop, fn)
}

func (f *connFixture) state() ConnectionState {
	var s ConnectionState
	f.do(func() { s = f.m.State() })
	return s
}

func (f *connFixture) waitState(want ConnectionState) {
	f.t.Helper()
	require.Eventually(f.t, func() bool { return f.state() == want }, 2*time.Second, 5*time.Millisecond,
		"connection never reached %s", want)
}

func (f *connFixture) connect(identity string) *MockTransport {
	f.t.Helper()
	var err error
	f.do(func() { err = f.m.Connect(identity) })
	require.NoError(f.t, err)
	f.waitState(StateOpen)
	return f.dialer.Last()
}

func (f *connFixture) send(frame protocol.OutboundFrame) error {
	var err error
	f.do(func() { err = f.m.Send(frame) })
	return err
}

func TestClassifyClose(t *testing.T) {
	tests := []struct {
		code int
		want CloseDisposition
	}{
		{4000, CloseTerminal},
		{1008, CloseTerminal},
		{1000, CloseClean},
		{1001, CloseClean},
		{1006, CloseRetry},
		{1011, CloseRetry},
		{1012, CloseRetry},
		{4001, CloseRetry},
		{0, CloseRetry},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyClose(tt.code), "code %d", tt.code)
	}
}

func TestDialFailureCode(t *testing.T) {
	assert.Equal(t, ClosePolicyViolation, dialFailureCode(&HandshakeError{Status: http.StatusUnauthorized}))
	assert.Equal(t, ClosePolicyViolation, dialFailureCode(&HandshakeError{Status: http.StatusForbidden}))
	assert.Equal(t, CloseAbnormal, dialFailureCode(&HandshakeError{Status: http.StatusBadGateway}))
	assert.Equal(t, CloseAbnormal, dialFailureCode(errors.New("connection refused")))
}

func TestConnectRequiresIdentity(t *testing.T) {
	f := newConnFixture(t)

	var err error
	f.do(func() { err = f.m.Connect("  ") })

	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, StateIdle, f.state())
	assert.Equal(t, 0, f.dialer.Dials())
}

func TestConnectOpensEndpointForIdentity(t *testing.T) {
	f := newConnFixture(t)
	f.connect("alice")

	assert.Equal(t, []string{"ws://chat.test/ws/alice"}, f.dialer.URLs())
	states, _, _, _ := f.obs.snapshot()
	assert.Equal(t, []ConnectionState{StateConnecting, StateOpen}, states)
}

func TestConnectWhileOpenIsNoop(t *testing.T) {
	f := newConnFixture(t)
	f.connect("alice")

	var err error
	f.do(func() { err = f.m.Connect("alice") })
	require.NoError(t, err)
	assert.Equal(t, 1, f.dialer.Dials())
	assert.Equal(t, StateOpen, f.state())
}

func TestFramesReachObserverInOrder(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	tr.SimulateFrame("one")
	tr.SimulateFrame("two")
	tr.SimulateFrame("three")

	require.Eventually(t, func() bool {
		_, frames, _, _ := f.obs.snapshot()
		return len(frames) == 3
	}, 2*time.Second, 5*time.Millisecond)
	_, frames, _, _ := f.obs.snapshot()
	assert.Equal(t, []string{"one", "two", "three"}, frames)
}

func TestAbnormalCloseReconnectsAfterOneDelay(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	tr.SimulateClose(CloseAbnormal, "")
	f.waitState(StateReconnecting)
	assert.Equal(t, 1, f.dialer.Dials())
	assert.Equal(t, 1, f.clock.Pending())

	f.do(func() { f.clock.Advance(DefaultReconnectDelay - time.Millisecond) })
	assert.Equal(t, StateReconnecting, f.state())
	assert.Equal(t, 1, f.dialer.Dials())

	f.do(func() { f.clock.Advance(time.Millisecond) })
	f.waitState(StateOpen)
	assert.Equal(t, 2, f.dialer.Dials())
	assert.Equal(t, 0, f.clock.Pending())

	_, _, notices, _ := f.obs.snapshot()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "code 1006")
	assert.Contains(t, notices[0], "Reconnecting in 5s")
}

func TestReadErrorReconnectsOnce(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	tr.SimulateError(errors.New("connection reset by peer"))
	f.waitState(StateReconnecting)
	assert.Equal(t, 1, f.clock.Pending(), "error followed by close must schedule exactly one reconnect")
}

func TestErrorEventAloneDoesNotTransition(t *testing.T) {
	f := newConnFixture(t)
	f.connect("alice")

	f.do(func() { f.m.handleError(f.m.gen, errors.New("transient")) })
	assert.Equal(t, StateOpen, f.state())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestTerminalCloseCodesNeverReconnect(t *testing.T) {
	for _, code := range []int{CloseSessionInvalid, ClosePolicyViolation} {
		t.Run(closeName(code), func(t *testing.T) {
			f := newConnFixture(t)
			tr := f.connect("alice")

			tr.SimulateClose(code, "session expired")
			f.waitState(StateRejectedTerminal)

			f.do(func() { f.clock.Advance(time.Minute) })
			assert.Equal(t, StateRejectedTerminal, f.state())
			assert.Equal(t, 1, f.dialer.Dials())
			assert.Equal(t, 0, f.clock.Pending())

			_, _, notices, rejected := f.obs.snapshot()
			assert.Len(t, notices, 1)
			require.Len(t, rejected, 1)
			assert.True(t, IsAuthFailure(rejected[0]))

			var authErr *AuthRejectedError
			require.ErrorAs(t, rejected[0], &authErr)
			assert.Equal(t, code, authErr.Code)
		})
	}
}

func closeName(code int) string {
	if code == CloseSessionInvalid {
		return "session_invalid"
	}
	return "policy_violation"
}

func TestPolicyViolationWhileReconnectingCancelsTimer(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	tr.SimulateClose(CloseAbnormal, "")
	f.waitState(StateReconnecting)
	require.Equal(t, 1, f.clock.Pending())

	f.dialer.SetDialError(&HandshakeError{Status: http.StatusForbidden, Err: websocket.ErrBadHandshake})
	f.do(func() { f.clock.Advance(DefaultReconnectDelay) })
	f.waitState(StateRejectedTerminal)

	assert.Equal(t, 0, f.clock.Pending())
	f.do(func() { f.clock.Advance(time.Minute) })
	assert.Equal(t, 2, f.dialer.Dials())
}

func TestCleanCloseCodesDoNotReconnect(t *testing.T) {
	for _, code := range []int{CloseNormal, CloseGoingAway} {
		f := newConnFixture(t)
		tr := f.connect("alice")

		tr.SimulateClose(code, "")
		f.waitState(StateClosedClean)
		assert.Equal(t, 0, f.clock.Pending(), "code %d", code)
	}
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	f := newConnFixture(t)
	f.dialer.SetDialError(errors.New("connection refused"))

	var err error
	f.do(func() { err = f.m.Connect("alice") })
	require.NoError(t, err)
	f.waitState(StateReconnecting)

	f.dialer.SetDialError(nil)
	f.do(func() { f.clock.Advance(DefaultReconnectDelay) })
	f.waitState(StateOpen)
	assert.Equal(t, 2, f.dialer.Dials())
}

func TestSendWhileNotOpenDrops(t *testing.T) {
	f := newConnFixture(t)

	err := f.send(protocol.PlainChat{Text: "hello"})
	assert.ErrorIs(t, err, ErrNotConnected)

	tr := f.connect("alice")
	tr.SimulateClose(CloseAbnormal, "")
	f.waitState(StateReconnecting)

	err = f.send(protocol.PlainChat{Text: "lost"})
	assert.ErrorIs(t, err, ErrNotConnected)

	f.do(func() { f.clock.Advance(DefaultReconnectDelay) })
	f.waitState(StateOpen)

	// nothing was queued for replay
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, tr.Written())
	assert.Empty(t, f.dialer.Last().Written())
}

func TestSendWritesInCallOrder(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	require.NoError(t, f.send(protocol.PlainChat{Text: "first"}))
	require.NoError(t, f.send(protocol.TypingPing{}))
	require.NoError(t, f.send(protocol.PrivateChat{Recipient: "bob", Content: "hi"}))

	require.Eventually(t, func() bool { return len(tr.Written()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"first",
		"/typing",
		`{"type":"private","recipient":"bob","content":"hi"}`,
	}, tr.Written())
}

func TestSendEncodeErrorIsReported(t *testing.T) {
	f := newConnFixture(t)
	f.connect("alice")

	err := f.send(protocol.PrivateChat{Content: "no recipient"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConnected)
}

func TestCloseIsCleanAndCancelsReconnect(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	tr.SimulateClose(CloseAbnormal, "")
	f.waitState(StateReconnecting)

	f.do(func() { f.m.Close(CloseNormal, "Logout") })
	assert.Equal(t, StateClosedClean, f.state())
	assert.Equal(t, 0, f.clock.Pending())

	f.do(func() { f.clock.Advance(time.Minute) })
	assert.Equal(t, 1, f.dialer.Dials())
}

func TestCloseWritesCloseFrame(t *testing.T) {
	f := newConnFixture(t)
	tr := f.connect("alice")

	f.do(func() { f.m.Close(CloseNormal, "Logout") })

	assert.Equal(t, []MockCloseFrame{{Code: CloseNormal, Reason: "Logout"}}, tr.CloseFrames())
	assert.True(t, tr.IsClosed())
	assert.Equal(t, StateClosedClean, f.state())

	// the read error caused by our own close is stale
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateClosedClean, f.state())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestExplicitConnectAfterCleanClose(t *testing.T) {
	f := newConnFixture(t)
	f.connect("alice")
	f.do(func() { f.m.Close(CloseNormal, "") })

	f.connect("alice")
	assert.Equal(t, 2, f.dialer.Dials())
}

func TestWebSocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 4)
	cookies := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		cookies <- r.Header.Get("Cookie")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("[2024-01-01 10:00:00] bob: hello"))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseSessionInvalid, "session expired"))
		conn.ReadMessage()
	}))
	defer srv.Close()

	loop := NewLoop(0)
	runLoop(t, loop)
	obs := &recordingObserver{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	endpoint := func(id string) string { return wsURL + "/ws/" + id }
	dialer := NewWebSocketDialer(`access_token="Bearer tok"`, time.Second)
	m := NewConnectionManager(endpoint, dialer, NewLoopScheduler(loop), func(fn func()) { loop.Post(fn) }, obs)

	stateOf := func() ConnectionState {
		var s ConnectionState
		onLoop(t, loop, func() { s = m.State() })
		return s
	}

	var connectErr error
	onLoop(t, loop, func() { connectErr = m.Connect("alice") })
	require.NoError(t, connectErr)
	require.Eventually(t, func() bool {
		_, frames, _, _ := obs.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var sendErr error
	onLoop(t, loop, func() { sendErr = m.Send(protocol.PlainChat{Text: "hi"}) })
	require.NoError(t, sendErr)

	select {
	case got := <-received:
		assert.Equal(t, "hi", got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}

	require.Eventually(t, func() bool { return stateOf() == StateRejectedTerminal }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, <-cookies, "access_token=")
}

func TestWebSocketHandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	loop := NewLoop(0)
	runLoop(t, loop)
	obs := &recordingObserver{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	m := NewConnectionManager(func(id string) string { return wsURL + "/ws/" + id },
		NewWebSocketDialer("", time.Second), NewLoopScheduler(loop), func(fn func()) { loop.Post(fn) }, obs)

	var connectErr error
	onLoop(t, loop, func() { connectErr = m.Connect("alice") })
	require.NoError(t, connectErr)
	require.Eventually(t, func() bool {
		_, _, _, rejected := obs.snapshot()
		return len(rejected) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var state ConnectionState
	var pending bool
	onLoop(t, loop, func() {
		state = m.State()
		pending = m.ReconnectPending()
	})
	assert.Equal(t, StateRejectedTerminal, state)
	assert.False(t, pending)
}
