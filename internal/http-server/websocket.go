package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/sourcegraph/conc"
)

const (
	eventBuffer  = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// HandleEvents streams session events over a websocket. The first frame is a
// snapshot of the transcript; every later frame is one event. A client that
// falls behind by more than the buffer is disconnected and must reconnect to
// get a fresh snapshot.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session", session.ID, "error", err)
		return
	}
	defer conn.Close()

	events := make(chan model.Event, eventBuffer)
	overflow := make(chan struct{})
	var overflowed bool
	var messages []model.Message
	unsubscribe := session.SubscribeWithSnapshot(
		func(snapshot []model.Message) { messages = snapshot },
		func(ev model.Event) {
			if overflowed {
				return
			}
			select {
			case events <- ev:
			default:
				overflowed = true
				close(overflow)
			}
		},
	)
	defer unsubscribe()

	snapshot := EventResponse{Kind: "snapshot", Messages: newMessagesResponse(messages)}
	if err = writeFrame(conn, snapshot); err != nil {
		s.log.Debug("failed to write snapshot", "session", session.ID, "error", err)
		return
	}

	closed := make(chan struct{})
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer func() {
		_ = conn.Close()
		wg.Wait()
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case ev := <-events:
			if err = writeFrame(conn, newEventResponse(ev)); err != nil {
				s.log.Debug("failed to write event", "session", session.ID, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			s.log.Warn("event stream fell behind", "session", session.ID)
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event stream fell behind"),
				time.Now().Add(writeWait),
			)
			return
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame EventResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
