package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/lotas/tabgroupsync/internal/applog"
)

// ErrNotConnected is returned when a command needs the extension and none is
// connected.
var ErrNotConnected = errors.New("extension not connected")

// IncomingMsg is an event or a command response from the extension.
type IncomingMsg struct {
	Type   string          `json:"type"`
	Tab    json.RawMessage `json:"tab,omitempty"`
	Tabs   json.RawMessage `json:"tabs,omitempty"`
	Groups json.RawMessage `json:"groups,omitempty"`
	Group  json.RawMessage `json:"group,omitempty"`
	Nav    json.RawMessage `json:"nav,omitempty"`
	TabID  int64           `json:"tabId,omitempty"`
	// GroupID is the tab-strip group id; empty means ungrouped.
	GroupID string `json:"groupId,omitempty"`
	Index   int    `json:"index,omitempty"`
	Title   string `json:"title,omitempty"`
	Color   string `json:"color,omitempty"`
	Favicon []byte `json:"favicon,omitempty"`
	GUID    string `json:"guid,omitempty"`
	// Command response fields
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// OutgoingMsg is a command to the extension.
type OutgoingMsg struct {
	ID         string  `json:"id"`
	Action     string  `json:"action"`
	TabID      int64   `json:"tabId,omitempty"`
	TabIDs     []int64 `json:"tabIds,omitempty"`
	GroupID    string  `json:"groupId,omitempty"`
	URL        string  `json:"url,omitempty"`
	Index      int     `json:"index"`
	Background bool    `json:"background,omitempty"`
	NavID      int64   `json:"navId,omitempty"`
	Title      string  `json:"title,omitempty"`
	Color      string  `json:"color,omitempty"`
	// Reply fields
	GUID  string `json:"guid,omitempty"`
	Error string `json:"error,omitempty"`
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port    int
	msgs    chan IncomingMsg
	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan IncomingMsg
	nextID  atomic.Uint64
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		msgs:    make(chan IncomingMsg, 256),
		pending: make(map[string]chan IncomingMsg),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of events from the extension. Command
// responses are delivered to Call instead.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a command without waiting for a response. Commands without an
// id get one.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%s: %w", msg.Action, ErrNotConnected)
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}

	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Call sends a command and waits for the response carrying the same id.
// A response with ok=false is returned as an error.
func (s *Server) Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = s.newID()
	ch := make(chan IncomingMsg, 1)
	s.mu.Lock()
	s.pending[msg.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, err
	}
	select {
	case resp := <-ch:
		if resp.OK != nil && !*resp.OK {
			return resp, fmt.Errorf("%s: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ctx.Err())
	}
}

func (s *Server) newID() string {
	return "cmd-" + strconv.FormatUint(s.nextID.Add(1), 10)
}

func (s *Server) deliverResponse(msg IncomingMsg) {
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	s.mu.Unlock()
	if !ok {
		applog.Warn("ws.response.unmatched", "id", msg.ID)
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // snapshots of large windows

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if msg.Type == "response" {
				s.deliverResponse(msg)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type)
			select {
			case s.msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
