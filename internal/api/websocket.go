package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tabletop/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control UI is served from other origins during exercises.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message types sent to websocket clients.
const (
	MessageStatus = "status"
	MessageError  = "error"
)

// ClientMessage is a control command sent over the websocket. Command is
// one of play, pause, stop, speed or fastforward.
type ClientMessage struct {
	Command string  `json:"command"`
	Speed   float64 `json:"speed,omitempty"`
	EventID int64   `json:"eventId,omitempty"`
}

// ServerMessage carries either a snapshot or an error.
type ServerMessage struct {
	Type       string            `json:"type"`
	Simulation *service.Snapshot `json:"simulation,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// safeConn serializes writes; gorilla connections allow one concurrent
// writer.
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func (sc *safeConn) closeWith(code int, reason string) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.close(code, reason)
}

// closeAfter writes v followed by a close frame, with no other write in
// between.
func (sc *safeConn) closeAfter(v any, code int, reason string) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if err := sc.Conn.WriteJSON(v); err != nil {
		return
	}
	sc.close(code, reason)
}

func (sc *safeConn) close(code int, reason string) {
	_ = sc.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// watch streams snapshots of a simulation every StatusInterval until it
// reaches a terminal state, and applies commands the client sends.
func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.opts.Service.Get(id); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Printf("simulation %d: websocket upgrade: %v", id, err)
		return
	}
	defer conn.Close()
	sc := &safeConn{Conn: conn}

	done := make(chan struct{})
	go s.readCommands(sc, id, done)
	s.pushStatus(sc, id, done)
}

func (s *Server) pushStatus(conn *safeConn, id int64, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()

	for {
		snap, err := s.opts.Service.Get(id)
		if err != nil {
			conn.closeWith(websocket.CloseInternalServerErr, err.Error())
			return
		}
		msg := ServerMessage{Type: MessageStatus, Simulation: &snap}
		if snap.State.Terminal() {
			conn.closeAfter(msg, websocket.CloseNormalClosure, snap.State.String())
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) readCommands(conn *safeConn, id int64, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.opts.Logger.Printf("simulation %d: websocket read: %v", id, err)
			}
			return
		}

		var msg ClientMessage
		reply := ServerMessage{Type: MessageStatus}
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = ServerMessage{Type: MessageError, Error: fmt.Sprintf("invalid message: %v", err)}
		} else if snap, err := s.apply(id, msg); err != nil {
			reply = ServerMessage{Type: MessageError, Error: err.Error()}
		} else {
			reply.Simulation = &snap
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) apply(id int64, msg ClientMessage) (service.Snapshot, error) {
	svc := s.opts.Service
	switch msg.Command {
	case "play":
		return svc.Play(id)
	case "pause":
		return svc.Pause(id)
	case "stop":
		return svc.Stop(id)
	case "speed":
		return svc.ChangeSpeed(id, msg.Speed)
	case "fastforward":
		return svc.FastForward(id, msg.EventID)
	default:
		return service.Snapshot{}, fmt.Errorf("unknown command %q", msg.Command)
	}
}
