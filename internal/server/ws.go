package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/turnmark/internal/annotate"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
	closeSaveWait  = 10 * time.Second
)

// Message types sent by the client.
const (
	MsgOpen               = "open"
	MsgMode               = "mode"
	MsgClick              = "click"
	MsgMarkerDragStart    = "markerDragStart"
	MsgMarkerDrag         = "markerDrag"
	MsgMarkerDragEnd      = "markerDragEnd"
	MsgCommit             = "commit"
	MsgSelect             = "select"
	MsgIntent             = "intent"
	MsgSlot               = "slot"
	MsgRemoveSlot         = "removeSlot"
	MsgDialogueSlot       = "dialogueSlot"
	MsgRemoveDialogueSlot = "removeDialogueSlot"
	MsgDeleteTurn         = "deleteTurn"
	MsgDiscardEdits       = "discardEdits"
	MsgSave               = "save"
	MsgClose              = "close"
)

// ClientMessage is a request frame. Only the fields relevant to Type are read.
type ClientMessage struct {
	Type string `json:"type"`

	CustomerID     string  `json:"customerId,omitempty"`
	ConversationID string  `json:"conversationId,omitempty"`
	Duration       float64 `json:"duration,omitempty"`

	On     bool              `json:"on,omitempty"`
	Time   float64           `json:"time,omitempty"`
	Marker annotate.MarkerID `json:"marker,omitempty"`
	Turn   int               `json:"turn,omitempty"`
	Index  int               `json:"index,omitempty"`
	Intent string            `json:"intent,omitempty"`
	Key    string            `json:"key,omitempty"`
	Value  string            `json:"value,omitempty"`
}

// StateFrame is sent after every successfully handled message.
type StateFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Request   string `json:"request"`

	Conversation *models.ConversationKey    `json:"conversation,omitempty"`
	Annotation   *models.DialogueAnnotation `json:"annotation,omitempty"`
	Render       *annotate.RenderPlan       `json:"render,omitempty"`
	Selection    *int                       `json:"selection,omitempty"`
	MarkerState  string                     `json:"markerState,omitempty"`
	Pair         *annotate.ProvisionalPair  `json:"pair,omitempty"`
	PendingEdits int                        `json:"pendingEdits"`
	CanCommit    bool                       `json:"canCommit"`
	Dirty        bool                       `json:"dirty"`
	Position     *float64                   `json:"position,omitempty"`
	Changed      bool                       `json:"changed"`
	Warnings     []string                   `json:"warnings,omitempty"`
}

// ErrorFrame reports a rejected message. The session stays usable.
type ErrorFrame struct {
	Type    string `json:"type"`
	Request string `json:"request"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

var errNoConversation = errors.New("no conversation is open")

// wsSession is one WebSocket connection. Messages are handled one at a
// time by readPump; writePump owns all writes to the connection.
type wsSession struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan any
	srv    *Server
	logger *slog.Logger

	claim  *service.Session
	engine *annotate.Engine
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	sess := &wsSession{
		id:     id,
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan any, 16),
		srv:    s,
		logger: s.logger.With("ws_session", id[:8]),
	}
	sess.logger.Info("websocket connected", "remote", r.RemoteAddr)

	s.track(sess)
	defer s.untrack(sess)

	go sess.writePump()
	sess.readPump()
}

func (s *Server) track(c *wsSession) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[c] = struct{}{}
	s.connWG.Add(1)
}

func (s *Server) untrack(c *wsSession) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, c)
	s.connWG.Done()
}

// closeSessions closes every open WebSocket connection and waits until their
// conversations are saved or ctx expires.
func (s *Server) closeSessions(ctx context.Context) {
	s.connMu.Lock()
	for c := range s.conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("websocket sessions still open after shutdown timeout")
	}
}

func (c *wsSession) readPump() {
	defer func() {
		if err := c.closeConversation(); err != nil {
			c.logger.Error("unsaved changes lost on disconnect", "conversation", c.engine.Key().String(), "error", err)
			c.srv.sessions.Release(c.claim.ID)
			c.claim, c.engine = nil, nil
		}
		close(c.send)
		c.logger.Info("websocket disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send <- ErrorFrame{Type: "error", Code: "bad_request", Error: "malformed message: " + err.Error()}
			continue
		}

		start := time.Now()
		frame, err := c.handle(msg)
		c.srv.metrics.Observe(metrics.OpWSMessage, start, err)
		if err != nil {
			c.logger.Debug("message rejected", "type", msg.Type, "error", err)
			c.send <- ErrorFrame{Type: "error", Request: msg.Type, Code: errorCode(err), Error: err.Error()}
			continue
		}
		c.send <- frame
	}
}

func (c *wsSession) writePump() {
	ticker := time.NewTicker(c.srv.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		// readPump exits once the connection is closed; drain so it never
		// blocks on a full channel meanwhile.
		for range c.send {
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle applies one message to the session and returns the reply frame.
func (c *wsSession) handle(msg ClientMessage) (StateFrame, error) {
	ctx := context.Background()
	var (
		position *float64
		changed  bool
		warnings []string
	)

	if msg.Type != MsgOpen && msg.Type != MsgClose && c.engine == nil {
		return StateFrame{}, errNoConversation
	}
	e := c.engine

	switch msg.Type {
	case MsgOpen:
		if err := c.open(ctx, models.ConversationKey{CustomerID: msg.CustomerID, ConversationID: msg.ConversationID}, msg.Duration); err != nil {
			return StateFrame{}, err
		}
		warnings = c.engine.Warnings()

	case MsgMode:
		if msg.On {
			e.EnterAnnotationMode()
		} else {
			e.ExitAnnotationMode()
		}

	case MsgClick:
		changed = e.Click(msg.Time)

	case MsgMarkerDragStart:
		if err := e.MarkerDragStart(msg.Marker); err != nil {
			return StateFrame{}, err
		}

	case MsgMarkerDrag:
		pos, err := e.MarkerDrag(msg.Marker, msg.Time)
		if err != nil {
			return StateFrame{}, err
		}
		position = &pos

	case MsgMarkerDragEnd:
		if err := e.MarkerDragEnd(msg.Marker); err != nil {
			return StateFrame{}, err
		}

	case MsgCommit:
		result, err := e.Commit()
		if err != nil {
			return StateFrame{}, err
		}
		changed = result.Changed()
		if changed {
			warnings = e.Warnings()
		}

	case MsgSelect:
		if err := e.Select(msg.Turn); err != nil {
			return StateFrame{}, err
		}

	case MsgIntent:
		if err := e.SetIntent(msg.Turn, msg.Intent); err != nil {
			return StateFrame{}, err
		}
		if msg.Intent != "" && c.srv.vocab.Intents.Len() > 0 && !c.srv.vocab.Intents.Known(msg.Intent) {
			warnings = append(warnings, fmt.Sprintf("intent %q is not in the vocabulary", msg.Intent))
		}

	case MsgSlot, MsgDialogueSlot:
		slot := models.SlotValue{Key: msg.Key, Value: msg.Value}
		var err error
		if msg.Type == MsgSlot {
			err = e.AttachSlot(msg.Turn, slot)
		} else {
			err = e.AddDialogueSlot(slot)
		}
		if err != nil {
			return StateFrame{}, err
		}
		if c.srv.vocab.SlotKeys.Len() > 0 && !c.srv.vocab.SlotKeys.Known(msg.Key) {
			warnings = append(warnings, fmt.Sprintf("slot key %q is not in the vocabulary", msg.Key))
		}

	case MsgRemoveSlot:
		if err := e.RemoveSlot(msg.Turn, msg.Index); err != nil {
			return StateFrame{}, err
		}

	case MsgRemoveDialogueSlot:
		if err := e.RemoveDialogueSlot(msg.Index); err != nil {
			return StateFrame{}, err
		}

	case MsgDeleteTurn:
		if err := e.DeleteTurn(msg.Turn); err != nil {
			return StateFrame{}, err
		}
		changed = true

	case MsgDiscardEdits:
		e.DiscardEdits()

	case MsgSave:
		if err := c.srv.svc.Save(ctx, e); err != nil {
			return StateFrame{}, err
		}

	case MsgClose:
		if err := c.closeConversation(); err != nil {
			return StateFrame{}, err
		}

	default:
		return StateFrame{}, fmt.Errorf("unknown message type %q", msg.Type)
	}

	frame := c.state(msg.Type)
	frame.Position = position
	frame.Changed = changed
	frame.Warnings = warnings
	return frame, nil
}

// open claims key and loads it, closing any conversation already open on
// this connection first.
func (c *wsSession) open(ctx context.Context, key models.ConversationKey, duration float64) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if c.engine != nil && c.engine.Key() == key {
		return nil
	}
	if err := c.closeConversation(); err != nil {
		return err
	}

	claim, err := c.srv.sessions.Acquire(key, c.remote)
	if err != nil {
		return err
	}
	e, err := c.srv.svc.Open(ctx, key, duration)
	if err != nil {
		c.srv.sessions.Release(claim.ID)
		return err
	}
	c.claim, c.engine = &claim, e
	return nil
}

// closeConversation saves pending changes and releases the claim. A failed
// save keeps the conversation open so the client can retry.
func (c *wsSession) closeConversation() error {
	if c.engine == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeSaveWait)
	defer cancel()
	if err := c.srv.svc.Close(ctx, c.engine); err != nil {
		return err
	}
	c.srv.sessions.Release(c.claim.ID)
	c.claim, c.engine = nil, nil
	return nil
}

func (c *wsSession) state(request string) StateFrame {
	frame := StateFrame{Type: "state", SessionID: c.id, Request: request}
	e := c.engine
	if e == nil {
		return frame
	}

	key := e.Key()
	plan := &annotate.RenderPlan{}
	e.Render(plan)
	pair := e.Pair()

	frame.Conversation = &key
	frame.Annotation = e.Annotation()
	frame.Render = plan
	frame.MarkerState = e.MarkerState().String()
	frame.Pair = &pair
	frame.PendingEdits = len(e.PendingEdits())
	frame.CanCommit = e.CanCommit()
	frame.Dirty = e.Dirty()
	if sel, ok := e.Selection(); ok {
		frame.Selection = &sel
	}
	return frame
}

// errorCode maps errors to stable codes for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, annotate.ErrInvalidSegment):
		return "invalid_segment"
	case errors.Is(err, annotate.ErrNotReady):
		return "not_ready"
	case errors.Is(err, annotate.ErrIndexOutOfRange):
		return "out_of_range"
	case errors.Is(err, annotate.ErrEmptySlotKey):
		return "empty_slot_key"
	case errors.Is(err, annotate.ErrDerivedSlot):
		return "derived_slot"
	case errors.Is(err, annotate.ErrUnknownMarker):
		return "unknown_marker"
	case errors.Is(err, ErrConversationBusy):
		return "busy"
	case errors.Is(err, store.ErrPersistence):
		return "persistence"
	case errors.Is(err, errNoConversation):
		return "no_conversation"
	default:
		return "bad_request"
	}
}
