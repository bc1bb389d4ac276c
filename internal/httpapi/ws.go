package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acceptOpts := &websocket.AcceptOptions{}
	for _, origin := range s.opts.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			acceptOpts.InsecureSkipVerify = true
			acceptOpts.OriginPatterns = nil
			break
		}
		acceptOpts.OriginPatterns = append(acceptOpts.OriginPatterns, stripScheme(origin))
	}

	conn, err := websocket.Accept(baseWriter(w), r, acceptOpts)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	client, ok := s.addClient(filters.CloneForStream())
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.removeClient(client)

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	// CloseRead watches for client close frames; we never expect inbound data.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case seg, ok := <-client.ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, seg)
			cancel()
			if err != nil {
				return
			}
			s.metrics.IncSegmentsSent("ws")
		}
	}
}

func stripScheme(origin string) string {
	origin = strings.TrimSpace(origin)
	origin = strings.TrimPrefix(origin, "https://")
	origin = strings.TrimPrefix(origin, "http://")
	return origin
}
