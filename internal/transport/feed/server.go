package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mintgate.io/internal/protocol"
	"mintgate.io/internal/transport"
)

const defaultBatchLimit = 500

type Server struct {
	hub          *Hub
	log          *zap.Logger
	loopbackOnly bool

	upgrader websocket.Upgrader
}

func NewServer(h *Hub, loopbackOnly bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:          h,
		log:          logger,
		loopbackOnly: loopbackOnly,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.loopbackOnly && !transport.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
			closeWith(conn, protocol.ErrProtoBadRequest, "expected SUBSCRIBE")
			return
		}
		if err := protocol.Validate(protocol.TypeSubscribe, msg); err != nil {
			closeWith(conn, protocol.ErrProtoBadRequest, "bad subscribe")
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, protocol.ErrProtoBadRequest, "bad subscribe")
			return
		}
		limit := sub.Limit
		if limit <= 0 || limit > defaultBatchLimit {
			limit = defaultBatchLimit
		}

		backlog, truncated, subscription := s.hub.Subscribe(sub.SinceCursor)
		defer subscription.Close()
		log := s.log.With(zap.Uint64("since", sub.SinceCursor), zap.String("remote", r.RemoteAddr))

		// The backlog goes out as one or more EVENT_BATCH messages, always at
		// least one so the client learns the current cursor.
		next := sub.SinceCursor
		if last := s.hub.LastCursor(); len(backlog) == 0 && last > next {
			next = last
		}
		for first := true; first || len(backlog) > 0; first = false {
			n := min(limit, len(backlog))
			items := backlog[:n]
			backlog = backlog[n:]
			if n > 0 {
				next = items[n-1].Cursor
			}
			batch := protocol.EventBatchMsg{
				Type:            protocol.TypeEventBatch,
				ProtocolVersion: protocol.Version,
				CampaignID:      s.hub.CampaignID(),
				Items:           items,
				NextCursor:      next,
				Truncated:       truncated && first,
			}
			if err := writeJSON(conn, batch); err != nil {
				return
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reader goroutine: the client sends nothing after SUBSCRIBE, so any
		// read error means it went away.
		_ = conn.SetReadDeadline(time.Time{})
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case it, ok := <-subscription.C():
				if !ok {
					if subscription.Dropped() {
						log.Info("feed subscriber fell behind")
						closeWith(conn, protocol.ErrSlowSubscriber, "resubscribe from your last cursor")
					}
					return
				}
				ev := protocol.EventMsg{
					Type:            protocol.TypeEvent,
					ProtocolVersion: protocol.Version,
					CampaignID:      s.hub.CampaignID(),
					Item:            it,
				}
				if err := writeJSON(conn, ev); err != nil {
					return
				}
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.NewError(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
