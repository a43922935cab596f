/*
events.go - Live run event stream over websocket

PURPOSE:
  Streams every event the coordinator handles (worker started, points read,
  search done, worker finished, run finished) to connected dashboards.

PROTOCOL:
  Server sends one JSON object per event, shaped like runner.Event:
    {"type":"progress","run_id":"...","identity":"Profile 1","completed":7,...}
  Client messages are read only to detect closure.
  A websocket PING is sent every 30s; a missing PONG for 60s drops the client.

SLOW CLIENTS:
  Each connection subscribes with a bounded buffer. Events that do not fit
  are dropped for that client only; the run never waits on a dashboard.

SEE ALSO:
  - runner/coordinator.go: Subscribe
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp/points-engine/runner"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunEvents upgrades to websocket and streams run events until either side
// goes away.
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so the client sees every
	// event published after Dial returns.
	events, unsubscribe := h.Coordinator.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			h.Logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	log := h.Logger.With(zap.String("remote_addr", r.RemoteAddr))
	log.Info("websocket client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan runner.Event, 256)

	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		h.forwardEvents(ctx, conn, events, send)
	}()
	go func() {
		defer producers.Done()
		h.sendPings(ctx, conn)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeEvents(conn, send)
	}()

	h.readClient(conn, log)

	cancel()
	producers.Wait()
	close(send)
	<-writerDone

	log.Info("websocket client disconnected")
}

// forwardEvents copies subscription events into send. A closed subscription
// means the coordinator shut down; the client is told and the read side is
// released.
func (h *Handler) forwardEvents(ctx context.Context, conn *websocket.Conn, events <-chan runner.Event, send chan<- runner.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				_ = conn.SetReadDeadline(time.Now())
				return
			}
			select {
			case send <- ev:
			default:
			}
		}
	}
}

func (h *Handler) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				h.Logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) writeEvents(conn *websocket.Conn, send <-chan runner.Event) {
	for ev := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.Logger.Debug("failed to write websocket event", zap.Error(err))
			// Keep draining so producers never block.
			for range send {
			}
			return
		}
	}
}

// readClient blocks until the connection closes or stops answering pings.
func (h *Handler) readClient(conn *websocket.Conn, log *zap.Logger) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
