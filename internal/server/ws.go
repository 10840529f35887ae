package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/sink"
)

// wsSink serializes event writes onto one websocket connection. Delivery
// failures are swallowed; the read loop notices the dead connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Send(ev sink.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteJSON(ev)
}

func (s *Server) registerWebsocket() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/meeting/:id", websocket.New(s.handleMeetingSocket))
}

// wsCommand is a text-frame control message from the client. Binary frames
// carry audio; everything else goes through here.
type wsCommand struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
}

// handleMeetingSocket owns one live meeting: the connection's binary frames
// feed the pipeline in arrival order, and pipeline events flow back over the
// same socket. Closing the socket without an explicit end aborts the session.
func (s *Server) handleMeetingSocket(conn *websocket.Conn) {
	defer conn.Close()

	id := conn.Params("id")
	out := &wsSink{conn: conn}

	profile := s.cfg.Profile(conn.Query("profile"))

	if err := s.pipeline.Create(id); err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			out.Send(sink.Error("meeting id is already in use"))
		} else {
			out.Send(sink.Error(err.Error()))
		}
		return
	}
	out.Send(sink.Status("meeting started"))

	ended := false
	defer func() {
		if !ended {
			s.pipeline.Abort(id)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := s.pipeline.Ingest(context.Background(), id, data, profile, out); err != nil {
				if errors.Is(err, session.ErrUnknownSession) {
					out.Send(sink.Error("meeting already ended"))
					ended = true
					return
				}
				s.log.WithError(err).WithField("session_id", id).Warn("chunk ingestion failed")
				out.Send(sink.Error("could not process audio chunk"))
			}

		case websocket.TextMessage:
			var cmd wsCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				out.Send(sink.Error("unparseable command"))
				continue
			}
			switch cmd.Type {
			case "end":
				report, err := s.pipeline.End(context.Background(), id)
				if err != nil {
					out.Send(sink.Error(err.Error()))
					ended = true
					return
				}
				s.rememberReport(report)
				out.Send(sink.Complete(report))
				ended = true
				return
			case "ask":
				answer, err := s.pipeline.Ask(context.Background(), id, cmd.Question)
				if err != nil {
					out.Send(sink.Error(err.Error()))
					continue
				}
				out.Send(sink.Insight(answer))
			default:
				out.Send(sink.Error("unknown command type"))
			}
		}
	}
}
