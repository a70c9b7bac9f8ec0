package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/console"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// stateMessage is pushed to the browser on every console change.
type stateMessage struct {
	Type  string        `json:"type"`
	State console.State `json:"state"`
}

type StateStreamHandler struct {
	Registry *console.Registry
	Log      *zap.Logger
	Upgrader websocket.Upgrader
}

func NewStateStreamHandler(reg *console.Registry, log *zap.Logger, origins []string) *StateStreamHandler {
	return &StateStreamHandler{
		Registry: reg,
		Log:      log,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// GET /api/v1/consoles/{id}/ws
func (h *StateStreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Console not found")
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("ws upgrade failed", zap.String("console_id", c.ID()), zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := c.Subscribe()
	defer cancel()

	log := h.Log.With(zap.String("console_id", c.ID()))
	log.Debug("ws subscriber attached")

	// The browser sends nothing meaningful; reading drives pong and close handling.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "console closed"))
				return
			}
			if err := conn.WriteJSON(stateMessage{Type: "state", State: st}); err != nil {
				log.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			log.Debug("ws subscriber detached")
			return
		}
	}
}
