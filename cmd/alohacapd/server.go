package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/golang/groupcache/singleflight"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"

	"github.com/lanikai/alohacap/internal/capture"
	"github.com/lanikai/alohacap/internal/media"
)

var errNoFrame = errors.New("no frame available")

// The engine operations exposed over HTTP. *capture.Engine implements it.
type engine interface {
	media.FrameSource
	WithLatestFrame(fn func(capture.Frame) error) (bool, error)

	OpenManual(path string) error
	CloseManual() error
	SelectInput(i int) error
	SelectStandard(i int) error
	SelectFormat(i int) error
	SetDimensions(w, h int) error
	SetFrequency(freq int) error
	SetFrequencyMHz(mhz float64) error

	State() capture.State
	RetriesLeft() int
	Negotiated() *capture.Negotiated
	Path() string
}

type server struct {
	eng     engine
	frames  *media.Broadcaster
	quality int

	// Concurrent snapshot requests share one encode of the latest frame.
	snapshots singleflight.Group

	upgrader websocket.Upgrader
	router   *http.ServeMux
}

func newServer(eng engine, frames *media.Broadcaster, quality int) *server {
	s := &server{
		eng:     eng,
		frames:  frames,
		quality: quality,
		router:  http.NewServeMux(),
	}
	s.router.HandleFunc("/ws", s.handleWebsocket)
	s.router.HandleFunc("/status", s.handleStatus)
	s.router.HandleFunc("/snapshot.jpg", s.handleSnapshot)
	s.router.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// A command received over the websocket, e.g.
//
//	{"type": "input", "value": 1}
//	{"type": "dim", "width": 640, "height": 480}
//	{"type": "open", "device": "/dev/video1"}
type command struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Device string  `json:"device"`
}

type reply struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
	Status  status `json:"status"`
}

func (s *server) apply(cmd command) error {
	switch cmd.Type {
	case "input":
		return s.eng.SelectInput(int(cmd.Value))
	case "standard":
		return s.eng.SelectStandard(int(cmd.Value))
	case "format":
		return s.eng.SelectFormat(int(cmd.Value))
	case "dim":
		return s.eng.SetDimensions(cmd.Width, cmd.Height)
	case "freq":
		return s.eng.SetFrequency(int(cmd.Value))
	case "freqMHz":
		return s.eng.SetFrequencyMHz(cmd.Value)
	case "open":
		path := cmd.Device
		if path == "" {
			path = s.eng.Path()
		}
		return s.eng.OpenManual(path)
	case "close":
		return s.eng.CloseManual()
	}
	return errors.Errorf("unknown command %q", cmd.Type)
}

// handleWebsocket streams preview frames as binary JPEG messages and accepts
// JSON commands, each answered with a JSON reply.
func (s *server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	id := xid.New().String()
	log.Info("client %s connected from %s", id, r.RemoteAddr)
	defer log.Info("client %s disconnected", id)

	// Frames and replies are written from different goroutines.
	var wmu sync.Mutex

	frames := s.frames.Subscribe(2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range frames {
			wmu.Lock()
			err := ws.WriteMessage(websocket.BinaryMessage, p)
			wmu.Unlock()
			if err != nil {
				log.Debug("client %s: write frame: %v", id, err)
				return
			}
		}
	}()
	defer func() {
		s.frames.Unsubscribe(frames)
		ws.Close() // unblocks a pending frame write
		<-done
	}()

	for {
		var cmd command
		if err := ws.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("client %s: read: %v", id, err)
			}
			return
		}

		rep := reply{Type: "result", Command: cmd.Type}
		if err := s.apply(cmd); err != nil {
			log.Warn("client %s: %s: %v", id, cmd.Type, err)
			rep.Error = err.Error()
		}
		rep.Status = s.status()

		wmu.Lock()
		err := ws.WriteJSON(rep)
		wmu.Unlock()
		if err != nil {
			log.Debug("client %s: write reply: %v", id, err)
			return
		}
	}
}

type status struct {
	Device      string   `json:"device"`
	State       string   `json:"state"`
	RetriesLeft int      `json:"retriesLeft"`
	Card        string   `json:"card,omitempty"`
	Driver      string   `json:"driver,omitempty"`
	Format      string   `json:"format,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Input       int      `json:"input"`
	Standard    int      `json:"standard"`
	Inputs      []string `json:"inputs,omitempty"`
	Standards   []string `json:"standards,omitempty"`
	Formats     []string `json:"formats,omitempty"`
	Controls    []string `json:"controls,omitempty"`
}

func (s *server) status() status {
	st := status{
		Device:      s.eng.Path(),
		State:       s.eng.State().String(),
		RetriesLeft: s.eng.RetriesLeft(),
		Input:       -1,
		Standard:    -1,
	}
	n := s.eng.Negotiated()
	if n == nil {
		return st
	}
	st.Card = n.Capability.Card
	st.Driver = n.Capability.Driver
	st.Format = n.StreamFormat.PixelFormat.String()
	st.Width = int(n.StreamFormat.Width)
	st.Height = int(n.StreamFormat.Height)
	st.Input = n.Input
	st.Standard = n.Standard
	for _, in := range n.Inputs {
		st.Inputs = append(st.Inputs, in.Name)
	}
	for _, std := range n.Standards {
		st.Standards = append(st.Standards, std.Name)
	}
	for _, f := range n.Formats {
		st.Formats = append(st.Formats, f.Description)
	}
	for _, c := range n.ActiveControls() {
		st.Controls = append(st.Controls, c.Name)
	}
	return st
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.Debug("status: %v", err)
	}
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v, err := s.snapshots.Do("snapshot", func() (interface{}, error) {
		var buf bytes.Buffer
		ok, err := s.eng.WithLatestFrame(func(f capture.Frame) error {
			return media.EncodeJPEG(&buf, f, s.quality)
		})
		if !ok {
			return nil, errNoFrame
		}
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	switch {
	case err == errNoFrame:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		log.Warn("snapshot: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(v.([]byte))
}
