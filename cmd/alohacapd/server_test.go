package main

import (
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/capture"
	"github.com/lanikai/alohacap/internal/config"
	"github.com/lanikai/alohacap/internal/media"
	"github.com/lanikai/alohacap/internal/v4l2"
)

// Records the engine calls made by the server.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	open     bool
	fail     error
	consumed int // frames handed out by WithFrame
	peeked   int // frames handed out by WithLatestFrame
}

func (e *fakeEngine) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.fail
}

func (e *fakeEngine) WithFrame(fn func(capture.Frame) error) (bool, error) {
	return e.withFrame(&e.consumed, fn)
}

func (e *fakeEngine) WithLatestFrame(fn func(capture.Frame) error) (bool, error) {
	return e.withFrame(&e.peeked, fn)
}

func (e *fakeEngine) withFrame(count *int, fn func(capture.Frame) error) (bool, error) {
	e.mu.Lock()
	open := e.open
	if open {
		*count++
	}
	e.mu.Unlock()
	if !open {
		return false, nil
	}
	data := make([]byte, 16*8*3/2)
	return true, fn(capture.Frame{
		Data:   data,
		Format: v4l2.V4L2_PIX_FMT_YUV420,
		Width:  16,
		Height: 8,
		Stride: 16,
	})
}

func (e *fakeEngine) OpenManual(path string) error { return e.record("open " + path) }
func (e *fakeEngine) CloseManual() error           { return e.record("close") }
func (e *fakeEngine) SelectInput(i int) error      { return e.record("input " + strconv.Itoa(i)) }
func (e *fakeEngine) SelectStandard(i int) error   { return e.record("standard " + strconv.Itoa(i)) }
func (e *fakeEngine) SelectFormat(i int) error     { return e.record("format " + strconv.Itoa(i)) }
func (e *fakeEngine) SetDimensions(w, h int) error { return e.record("dim " + strconv.Itoa(w) + "x" + strconv.Itoa(h)) }
func (e *fakeEngine) SetFrequency(f int) error     { return e.record("freq " + strconv.Itoa(f)) }
func (e *fakeEngine) SetFrequencyMHz(mhz float64) error {
	return e.SetFrequency(int(mhz * 16))
}

func (e *fakeEngine) State() capture.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return capture.Streaming
	}
	return capture.Closed
}

func (e *fakeEngine) RetriesLeft() int { return 10 }
func (e *fakeEngine) Path() string     { return "/dev/video0" }

func (e *fakeEngine) Negotiated() *capture.Negotiated {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil
	}
	return &capture.Negotiated{
		Capability: v4l2.Capability{Card: "Fake Capture", Driver: "fake"},
		Inputs:     []v4l2.Input{{Name: "Composite"}, {Name: "S-Video"}},
		Formats:    []v4l2.FormatDesc{{Description: "Planar YUV 4:2:0", PixelFormat: v4l2.V4L2_PIX_FMT_YUV420}},
		Controls:   []v4l2.Control{{ID: v4l2.V4L2_CID_BASE, Name: "Brightness"}, {ID: v4l2.ControlInactive}},
		Input:      1,
		Standard:   -1,
		StreamFormat: v4l2.PixFormat{
			Width:       16,
			Height:      8,
			PixelFormat: v4l2.V4L2_PIX_FMT_YUV420,
		},
	}
}

func (e *fakeEngine) history() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func newTestServer(t *testing.T, eng *fakeEngine) *httptest.Server {
	frames := media.NewBroadcaster()
	media.NewPump(eng, frames, 100, 50)
	ts := httptest.NewServer(newServer(eng, frames, 50))
	t.Cleanup(func() {
		ts.Close()
		frames.Close()
	})
	return ts
}

func TestStatus(t *testing.T) {
	eng := &fakeEngine{open: true}
	ts := newTestServer(t, eng)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "/dev/video0", st.Device)
	assert.Equal(t, "streaming", st.State)
	assert.Equal(t, "Fake Capture", st.Card)
	assert.Equal(t, "YU12", st.Format)
	assert.Equal(t, 16, st.Width)
	assert.Equal(t, 1, st.Input)
	assert.Equal(t, []string{"Composite", "S-Video"}, st.Inputs)
	assert.Equal(t, []string{"Brightness"}, st.Controls)
}

func TestSnapshot(t *testing.T) {
	eng := &fakeEngine{}
	ts := newTestServer(t, eng)

	resp, err := http.Get(ts.URL + "/snapshot.jpg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	eng.mu.Lock()
	eng.open = true
	eng.mu.Unlock()

	resp, err = http.Get(ts.URL + "/snapshot.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	cfg, err := jpeg.DecodeConfig(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)

	// Snapshots leave frames to the preview stream.
	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Equal(t, 1, eng.peeked)
	assert.Zero(t, eng.consumed)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// Reads until a text message arrives, skipping preview frames.
func readReply(t *testing.T, ws *websocket.Conn) reply {
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		typ, p, err := ws.ReadMessage()
		require.NoError(t, err)
		if typ != websocket.TextMessage {
			continue
		}
		var rep reply
		require.NoError(t, json.Unmarshal(p, &rep))
		return rep
	}
}

func TestWebsocketCommands(t *testing.T) {
	eng := &fakeEngine{}
	ts := newTestServer(t, eng)
	ws := dial(t, ts)

	cmds := []string{
		`{"type": "input", "value": 1}`,
		`{"type": "standard", "value": 2}`,
		`{"type": "format", "value": 0}`,
		`{"type": "dim", "width": 640, "height": 480}`,
		`{"type": "freq", "value": 7540}`,
		`{"type": "freqMHz", "value": 471.25}`,
		`{"type": "open"}`,
		`{"type": "open", "device": "/dev/video1"}`,
		`{"type": "close"}`,
	}
	for _, c := range cmds {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(c)))
		rep := readReply(t, ws)
		assert.Equal(t, "result", rep.Type)
		assert.Empty(t, rep.Error, c)
	}

	assert.Equal(t, []string{
		"input 1",
		"standard 2",
		"format 0",
		"dim 640x480",
		"freq 7540",
		"freq 7540",
		"open /dev/video0",
		"open /dev/video1",
		"close",
	}, eng.history())

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type": "zoom"}`)))
	rep := readReply(t, ws)
	assert.Equal(t, "zoom", rep.Command)
	assert.Contains(t, rep.Error, "unknown command")

	eng.mu.Lock()
	eng.fail = errors.New("no device opened")
	eng.mu.Unlock()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type": "input", "value": 0}`)))
	rep = readReply(t, ws)
	assert.Equal(t, "no device opened", rep.Error)
	assert.Equal(t, "closed", rep.Status.State)
}

func TestWebsocketFrames(t *testing.T) {
	eng := &fakeEngine{open: true}
	ts := newTestServer(t, eng)
	ws := dial(t, ts)

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, p, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	cfg, err := jpeg.DecodeConfig(strings.NewReader(string(p)))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Height)
}

func TestEngineConfig(t *testing.T) {
	o := config.Defaults()
	o.FrequencyMhz = 471.25
	o.ManualOpen = true

	cfg := engineConfig(o)
	assert.Equal(t, "/dev/video0", cfg.Path)
	assert.Equal(t, 7540, cfg.Frequency)
	assert.Equal(t, -1, cfg.Input)
	assert.Equal(t, 320, cfg.Width)
	assert.True(t, cfg.ManualOpen)
}
