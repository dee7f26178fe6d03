package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/funtimes-shiftpwm/internal/diagnostics"
	"github.com/coreman2200/funtimes-shiftpwm/internal/pwm"
	"github.com/coreman2200/funtimes-shiftpwm/internal/stream"
)

// Server is a runtime producer: websocket clients change levels, watch them
// and receive diagnostics.
type Server struct {
	store  *pwm.Store
	stats  func() stream.Stats
	driver string

	// OnUpdate, if set, sees every level change made through /control.
	OnUpdate func(pwm.Levels)

	// ctl serializes read-modify-write of single channels.
	ctl sync.Mutex

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex

	upgrader     websocket.Upgrader
	startTime    time.Time
	lastSendErrs uint64
}

func NewServer(store *pwm.Store, stats func() stream.Stats, driver string) *Server {
	if stats == nil {
		stats = func() stream.Stats { return stream.Stats{} }
	}
	return &Server{
		store:       store,
		stats:       stats,
		driver:      driver,
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startTime:   time.Now(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/levels", s.HandleLevelsWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return withCORS(mux)
}

type controlMsg struct {
	Levels  []int `json:"levels,omitempty"`
	Channel *int  `json:"channel,omitempty"`
	Level   *int  `json:"level,omitempty"`
}

type stepMsg struct {
	Mask uint32 `json:"mask"`
	Len  uint8  `json:"len"`
}

type frameMsg struct {
	T      int64     `json:"t"`
	Cycle  uint64    `json:"cycle"`
	Levels []int     `json:"levels"`
	Steps  []stepMsg `json:"steps,omitempty"`
	Active int       `json:"active"`
	Error  string    `json:"error,omitempty"`
}

func newFrameMsg(f pwm.Frame, cycle uint64, withSteps bool) frameMsg {
	m := frameMsg{
		T:      time.Now().UnixNano(),
		Cycle:  cycle,
		Levels: make([]int, pwm.Channels),
		Active: f.Steps.Active(),
	}
	for i, v := range f.Levels {
		m.Levels[i] = int(v)
	}
	if withSteps {
		m.Steps = make([]stepMsg, 0, pwm.StepCount)
		for _, st := range f.Steps {
			m.Steps = append(m.Steps, stepMsg{Mask: st.Mask, Len: st.Len})
		}
	}
	return m
}

func (s *Server) register(set map[*websocket.Conn]bool, conn *websocket.Conn) {
	s.mu.Lock()
	set[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(set, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleLevelsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.register(s.clients, conn)
}

func (s *Server) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.register(s.diagClients, conn)
}

func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := s.applyControl(data)
		reply := newFrameMsg(f, s.stats().Cycles, true)
		if err != nil {
			reply.Error = err.Error()
		}
		b, _ := json.Marshal(reply)
		s.writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, b)
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) applyControl(data []byte) (pwm.Frame, error) {
	var msg controlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		s.pushDiag(diag.Diagnostic{Severity: diag.Warn, Code: diag.ControlBadJSON, Summary: "Control message is not JSON", Detail: err.Error()})
		return s.store.Snapshot(), fmt.Errorf("bad json: %w", err)
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	var l pwm.Levels
	switch {
	case msg.Levels != nil:
		if len(msg.Levels) != pwm.Channels {
			return s.badLevel(fmt.Errorf("levels: want %d values, got %d", pwm.Channels, len(msg.Levels)))
		}
		for i, v := range msg.Levels {
			if v < 0 || v > 255 {
				return s.badLevel(fmt.Errorf("levels[%d]=%d out of range 0..255", i, v))
			}
			l[i] = uint8(v)
		}
	case msg.Channel != nil && msg.Level != nil:
		ch, v := *msg.Channel, *msg.Level
		if ch < 0 || ch >= pwm.Channels {
			return s.badLevel(fmt.Errorf("channel %d out of range 0..%d", ch, pwm.Channels-1))
		}
		if v < 0 || v > 255 {
			return s.badLevel(fmt.Errorf("level %d out of range 0..255", v))
		}
		l = s.store.Snapshot().Levels
		l[ch] = uint8(v)
	default:
		s.pushDiag(diag.Diagnostic{Severity: diag.Warn, Code: diag.ControlEmpty, Summary: "Control message has no levels or channel/level pair"})
		return s.store.Snapshot(), fmt.Errorf("nothing to apply")
	}

	f := s.store.Update(l)
	if s.OnUpdate != nil {
		s.OnUpdate(f.Levels)
	}
	log.Debug().Ints("levels", newFrameMsg(f, 0, false).Levels).Int("active_steps", f.Steps.Active()).Msg("levels updated")
	s.pushDiag(diag.Diagnostic{Severity: diag.Info, Code: diag.LevelsUpdated, Summary: "Levels updated",
		Evidence: map[string]any{"active_steps": f.Steps.Active()}})
	return f, nil
}

func (s *Server) badLevel(err error) (pwm.Frame, error) {
	s.pushDiag(diag.Diagnostic{
		Severity:       diag.Warn,
		Code:           diag.ControlBadLevel,
		Summary:        "Rejected level update",
		Detail:         err.Error(),
		SuggestedFixes: []string{"send 8 levels in 0..255", "channels are numbered 0..7"},
	})
	return s.store.Snapshot(), err
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	f := s.store.Snapshot()
	st := s.stats()
	resp := map[string]any{
		"levels":       newFrameMsg(f, st.Cycles, false).Levels,
		"active_steps": f.Steps.Active(),
		"cycles":       st.Cycles,
		"sends":        st.Sends,
		"send_errors":  st.SendErrors,
		"uptime_s":     time.Since(s.startTime).Seconds(),
		"driver":       s.driver,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Run broadcasts the current levels to /levels clients every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *Server) broadcast() {
	st := s.stats()
	if st.SendErrors > s.lastSendErrs {
		s.pushDiag(diag.Diagnostic{
			Severity:     diag.Err,
			Code:         diag.StreamSendErrors,
			Summary:      "Shift register writes are failing",
			LikelyCauses: []string{"SPI/GPIO device unplugged", "wrong device name in config"},
			Evidence:     map[string]any{"send_errors": st.SendErrors, "sends": st.Sends},
		})
		s.lastSendErrs = st.SendErrors
	}

	b, _ := json.Marshal(newFrameMsg(s.store.Snapshot(), st.Cycles, false))
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write levels")
		}
	}
}

func (s *Server) pushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
