package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/uvuchan/chanchu/modules/broadcast"
	"github.com/uvuchan/chanchu/modules/registry"
)

// Inbound message types.
const (
	MsgUploadFile = "upload_file"
	MsgDeleteFile = "delete_file"
)

// readLimitSlack covers the JSON envelope around an encoded upload.
const readLimitSlack = 64 * 1024

// EventHandler handles one inbound message type. A returned error is
// reported to the sending session only.
type EventHandler func(ctx context.Context, sess *broadcast.Session, msg inboundMessage) error

// eventHandlers builds the inbound dispatch table.
func (m *Module) eventHandlers() map[string]EventHandler {
	return map[string]EventHandler{
		MsgUploadFile: m.handleUploadFile,
		MsgDeleteFile: m.handleDeleteFile,
	}
}

// handleWebSocket handles WebSocket connections at /ws.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	identity := strings.TrimSpace(c.Query("uploadedBy", ""))
	bc := m.cfg.Broadcast
	sess := broadcast.NewSession(m.newID(), identity, c, bc.QueueSize, m.logger)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.WritePump(bc.PingInterval, bc.WriteTimeout)
	}()
	// The connection is released when this handler returns, so the writer
	// must have stopped by then.
	defer func() {
		m.hub.Leave(sess)
		<-writerDone
	}()

	if err := m.hub.Join(sess, m.registry); err != nil {
		m.logger.Warn("Failed to start session", "session_id", sess.ID, "error", err)
		return
	}

	c.SetReadLimit(m.readLimit())
	pongWait := 2 * bc.PingInterval
	extend := func() {
		if pongWait > 0 {
			_ = c.SetReadDeadline(time.Now().Add(pongWait))
		} else {
			_ = c.SetReadDeadline(time.Time{})
		}
	}
	extend()
	c.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}
		extend()
		m.dispatch(sess, data)
	}
}

// readLimit is the largest frame a client may send: an upload of the
// maximum size in base64 plus room for the envelope.
func (m *Module) readLimit() int64 {
	if m.cfg.MaxUploadSize <= 0 {
		return 0
	}
	return int64(base64.StdEncoding.EncodedLen(int(m.cfg.MaxUploadSize))) + readLimitSlack
}

func (m *Module) dispatch(sess *broadcast.Session, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		wsMessagesTotal.WithLabelValues("invalid", "error").Inc()
		m.replyError(sess, "", "Invalid message format")
		return
	}

	handler, ok := m.handlers[msg.Type]
	if !ok {
		wsMessagesTotal.WithLabelValues("unknown", "error").Inc()
		m.replyError(sess, msg.RequestID, "Unknown message type: "+msg.Type)
		return
	}

	if err := handler(context.Background(), sess, msg); err != nil {
		wsMessagesTotal.WithLabelValues(msg.Type, "error").Inc()
		_, status, text := classify(err)
		if status >= 500 {
			m.logger.Error("WebSocket request failed", "session_id", sess.ID, "type", msg.Type, "error", err)
		}
		m.replyError(sess, msg.RequestID, text)
		return
	}
	wsMessagesTotal.WithLabelValues(msg.Type, "ok").Inc()
}

func (m *Module) replyError(sess *broadcast.Session, requestID, text string) {
	err := sess.Send(broadcast.Envelope{
		Type:      broadcast.EventError,
		RequestID: requestID,
		Payload:   text,
	})
	if err != nil {
		m.logger.Debug("Failed to send error", "session_id", sess.ID, "error", err)
	}
}

func (m *Module) handleUploadFile(ctx context.Context, sess *broadcast.Session, msg inboundMessage) error {
	var p UploadFilePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("%w: invalid upload_file payload", registry.ErrValidation)
	}
	if strings.TrimSpace(p.UploadedBy) == "" {
		p.UploadedBy = sess.Identity
	}

	content, err := decodeContent(p.FileContent, m.cfg.MaxUploadSize)
	if err != nil {
		return err
	}

	ctx, cancel := m.uploadContext(ctx)
	defer cancel()
	rec, err := m.registry.Create(ctx, registry.NewFile{
		FileName:     p.FileName,
		RelativePath: p.RelativePath,
		UploadedBy:   p.UploadedBy,
	}, bytes.NewReader(content))
	if err != nil {
		return err
	}

	// file_updated for this record is already queued ahead of this reply.
	return sess.Send(broadcast.Envelope{
		Type:      broadcast.EventUploadComplete,
		RequestID: msg.RequestID,
		Payload:   broadcast.UploadComplete{ID: rec.ID},
	})
}

func (m *Module) handleDeleteFile(ctx context.Context, _ *broadcast.Session, msg inboundMessage) error {
	id, err := parseFileID(msg.Payload)
	if err != nil {
		return err
	}
	_, err = m.registry.Delete(ctx, id)
	return err
}

// decodeContent accepts plain base64 or a data:<mime>;base64,<data> URL.
// The decoded size is checked before anything is decoded.
func decodeContent(content string, maxSize int64) ([]byte, error) {
	if strings.HasPrefix(content, "data:") {
		comma := strings.IndexByte(content, ',')
		if comma < 0 || !strings.HasSuffix(content[:comma], ";base64") {
			return nil, fmt.Errorf("%w: fileContent must be a base64 data URL", registry.ErrValidation)
		}
		content = content[comma+1:]
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: fileContent is required", registry.ErrValidation)
	}

	unpadded := strings.TrimRight(content, "=")
	if size := int64(base64.RawStdEncoding.DecodedLen(len(unpadded))); maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", registry.ErrPayloadTooLarge, maxSize)
	}

	data, err := base64.RawStdEncoding.DecodeString(unpadded)
	if err != nil {
		return nil, fmt.Errorf("%w: fileContent is not valid base64", registry.ErrValidation)
	}
	return data, nil
}

// parseFileID reads a delete_file payload, either "id" or {"id": "..."}.
func parseFileID(payload json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(payload, &id); err != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil {
			return "", fmt.Errorf("%w: invalid delete_file payload", registry.ErrValidation)
		}
		id = obj.ID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: file id is required", registry.ErrValidation)
	}
	return id, nil
}
