package mapserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/musthaq16/vehicle-route-tracker/internal/dispatcher"
	"github.com/musthaq16/vehicle-route-tracker/internal/tracker"
	"github.com/musthaq16/vehicle-route-tracker/types"
)

const (
	sendChSize      = 16
	writeWait       = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Tracker is the part of the tracking controller the map drives.
type Tracker interface {
	AddWaypoint(ctx context.Context, pt types.Coordinate) error
	StartTracking(ctx context.Context) error
	Snapshot(ctx context.Context) (tracker.Snapshot, error)
	Subscribe() (<-chan tracker.Snapshot, func())
}

// Server exposes the tracker to browser maps over WebSocket.
type Server struct {
	tracker    Tracker
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	upgrader   ws.Upgrader
}

// New registers the map commands on d and returns a server for them.
// Browsers may connect from the server's own origin or from allowedOrigins.
func New(t Tracker, d *dispatcher.Dispatcher, logger *slog.Logger, allowedOrigins []string) *Server {
	s := &Server{
		tracker:    t,
		dispatcher: d,
		logger:     logger,
	}
	s.upgrader = ws.Upgrader{CheckOrigin: originChecker(allowedOrigins)}

	d.Register(CmdAddWaypoint, s.handleAddWaypoint, dispatcher.Logged())
	d.Register(CmdStartTracking, s.handleStartTracking, dispatcher.Logged())
	d.Register(CmdGetState, s.handleGetState)

	return s
}

// Handler returns the HTTP routes: /healthz and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", s.serveWS)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("map server shutdown", "error", err)
		}
	}()

	s.logger.Info("map server listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("map server: %w", err)
	}
	return nil
}

// originChecker accepts requests without an Origin header (non-browser
// clients), same-origin requests and the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}
	c.logger = s.logger.With("conn", c.id)
	c.logger.Info("map client connected", "remote", r.RemoteAddr)

	updates, unsubscribe := s.tracker.Subscribe()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// closing unblocks the reader when the writer gives up first
		defer conn.Close()
		c.writeLoop(updates)
	}()

	s.readLoop(r.Context(), c)

	close(c.done)
	unsubscribe()
	<-writerDone
	c.logger.Info("map client disconnected")
}

// readLoop dispatches client requests until the socket fails.
func (s *Server) readLoop(ctx context.Context, c *connection) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.enqueue(Reply{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		result, err := s.dispatcher.Dispatch(ctx, dispatcher.Event{
			Command:   req.Command,
			Args:      req.Args,
			Timestamp: time.Now(),
		})
		reply := Reply{ID: req.ID, Result: result}
		if err != nil {
			reply = Reply{ID: req.ID, Error: err.Error()}
		}
		c.enqueue(reply)
	}
}

func (s *Server) handleAddWaypoint(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) != 2 {
		return nil, fmt.Errorf("%s expects lat and lng, got %d args", CmdAddWaypoint, len(e.Args))
	}
	pt, err := types.ParseCoord(strings.Join(e.Args, ","))
	if err != nil {
		return nil, err
	}
	if err := s.tracker.AddWaypoint(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

func (s *Server) handleStartTracking(ctx context.Context, _ dispatcher.Event) (any, error) {
	if err := s.tracker.StartTracking(ctx); err != nil {
		return nil, err
	}
	return tracker.LabelTracking, nil
}

func (s *Server) handleGetState(ctx context.Context, _ dispatcher.Event) (any, error) {
	snap, err := s.tracker.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return NewStateMessage(snap), nil
}
