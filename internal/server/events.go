package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/streamscribe/internal/service"
)

const (
	eventsBuffer = 64
	pingInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// handleEvents streams job events over a websocket. Query parameters:
// since replays retained events after that sequence number, job_id limits
// the stream to one job.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	bus := s.orch.Jobs().Events()
	if bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	jobID := r.URL.Query().Get("job_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing published in between is lost.
	events, unsubscribe := bus.Subscribe(eventsBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := since
	send := func(e service.Event) error {
		if e.Seq <= last || (jobID != "" && e.JobID != jobID) {
			return nil
		}
		last = e.Seq
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(e)
	}

	for _, e := range bus.Since(since) {
		if err := send(e); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := send(e); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
