package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/cortexpresence/internal/bus"
	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/config"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/signals"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeInput records every call as a short string.
type fakeInput struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInput) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeInput) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInput) HandleKeystroke(deletion bool) {
	if deletion {
		f.record("keystroke:delete")
		return
	}
	f.record("keystroke")
}
func (f *fakeInput) HandlePointer(x, y float64)    { f.record("pointer") }
func (f *fakeInput) SetAnchor(x, y float64)        { f.record("anchor") }
func (f *fakeInput) ClearAnchor()                  { f.record("anchor:clear") }
func (f *fakeInput) SetMode(mode string)           { f.record("mode:" + mode) }
func (f *fakeInput) SetActiveResponse(active bool) { f.record("streaming") }
func (f *fakeInput) HandleTyping(text string)      { f.record("typing:" + text) }
func (f *fakeInput) HandleAction(a signals.Action) error {
	if !a.Valid() {
		return assert.AnError
	}
	f.record("action:" + string(a))
	return nil
}
func (f *fakeInput) AppendMessage(m classify.Message) error {
	f.record("message:" + m.Content)
	return nil
}
func (f *fakeInput) HandleResponse(text string) (emotion.AgentEmotion, error) {
	f.record("response:" + text)
	return emotion.Calm, nil
}
func (f *fakeInput) Reset() error { f.record("reset"); return nil }
func (f *fakeInput) ApplyPreferences(p config.PreferencesConfig) {
	f.record("preferences")
}

type fixture struct {
	hub   *Hub
	bus   *bus.EventBus
	input *fakeInput
	srv   *httptest.Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	b := bus.NewEventBus()
	in := &fakeInput{}
	h := NewHub(b, in, cfg, zerolog.Nop())
	h.Start()

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &fixture{hub: h, bus: b, input: in, srv: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + WebSocketEndpoint
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return f.hub.ClientCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	f.bus.PublishSync(bus.NewEvent(bus.EventTypeEmotionChanged, time.Now(), map[string]any{"emotion": "curious"}))

	msg := readEvent(t, conn)
	assert.Equal(t, string(bus.EventTypeEmotionChanged), msg["type"])
	assert.Equal(t, "curious", msg["data"].(map[string]any)["emotion"])
	assert.NotEmpty(t, msg["id"])
}

func TestHub_ReplaysLatestStateOnConnect(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.bus.PublishSync(bus.NewEvent(bus.EventTypeEmotionChanged, time.Now(), map[string]any{"emotion": "sad"}))

	conn := f.dial(t)
	msg := readEvent(t, conn)
	assert.Equal(t, "sad", msg["data"].(map[string]any)["emotion"])
}

func TestHub_DispatchesFrames(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	frames := []Frame{
		{Type: FrameKeystroke, Deletion: true},
		{Type: FramePointer, X: 1, Y: 2},
		{Type: FrameAnchor, X: 10, Y: 10},
		{Type: FrameAnchor, Clear: true},
		{Type: FrameMode, Mode: "code"},
		{Type: FrameStreaming, Active: true},
		{Type: FrameTyping, Text: "hello"},
		{Type: FrameAction, Action: signals.ActionFileUploaded},
		{Type: FrameMessage, Message: &classify.Message{Sender: classify.SenderUser, Content: "hi"}},
		{Type: FrameResponse, Text: "done"},
		{Type: FrameReset},
		{Type: FramePreferences, Preferences: &config.PreferencesConfig{SoundEnabled: true}},
	}
	for _, fr := range frames {
		require.NoError(t, conn.WriteJSON(fr))
	}

	want := []string{
		"keystroke:delete", "pointer", "anchor", "anchor:clear", "mode:code", "streaming",
		"typing:hello", "action:file_uploaded", "message:hi", "response:done", "reset", "preferences",
	}
	require.Eventually(t, func() bool { return len(f.input.Calls()) == len(want) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, f.input.Calls())
}

func TestHub_RepliesWithErrors(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(Frame{Type: "dance"}))
	msg := readEvent(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["error"], "unknown frame type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readEvent(t, conn)
	assert.Contains(t, msg["error"], "decode frame")

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameMessage}))
	msg = readEvent(t, conn)
	assert.Contains(t, msg["error"], "without message")
}

func TestHub_RateLimitsFrames(t *testing.T) {
	f := newFixture(t, Config{FrameRate: 0.001, FrameBurst: 2})
	conn := f.dial(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(Frame{Type: FrameKeystroke}))
	}
	require.NoError(t, conn.WriteJSON(Frame{Type: "dance"}))

	// The burst is spent, so even the bad frame is dropped silently.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.input.Calls(), 2)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"http://app.example"}})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + WebSocketEndpoint

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://app.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHub_Health(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.dial(t)

	resp, err := f.srv.Client().Get(f.srv.URL + HealthEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["clients"])
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	f.hub.Close()
	assert.Zero(t, f.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// Events after close go nowhere.
	f.bus.PublishSync(bus.NewEvent(bus.EventTypeAudioCue, time.Now(), nil))
}
