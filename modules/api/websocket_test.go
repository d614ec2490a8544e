package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvuchan/chanchu/config"
	"github.com/uvuchan/chanchu/domain/file"
	"github.com/uvuchan/chanchu/modules/broadcast"
	"github.com/uvuchan/chanchu/modules/registry"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// listen serves the module's app on a loopback port and returns the
// WebSocket URL.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.module.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.module.app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillaws.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wsFrame
	require.NoError(t, json.Unmarshal(data, &f), string(data))
	return f
}

func send(t *testing.T, conn *gorillaws.Conn, msgType, requestID string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundMessage{Type: msgType, RequestID: requestID, Payload: raw}))
}

func seed(t *testing.T, reg *registry.Registry, name string) file.Record {
	t.Helper()
	rec, err := reg.Create(context.Background(), registry.NewFile{
		FileName:   name,
		UploadedBy: "seed",
	}, strings.NewReader("seeded"))
	require.NoError(t, err)
	return rec
}

func TestWebSocket_SnapshotOnConnect(t *testing.T) {
	env := newTestEnv(t, nil)
	existing := seed(t, env.reg, "old.txt")
	url := env.listen(t)

	conn := dial(t, url)
	frame := readFrame(t, conn)
	require.Equal(t, broadcast.EventFilesList, frame.Type)

	var files []file.Record
	require.NoError(t, json.Unmarshal(frame.Payload, &files))
	require.Len(t, files, 1)
	assert.Equal(t, existing.ID, files[0].ID)

	assert.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_UploadReachesEveryone(t *testing.T) {
	env := newTestEnv(t, nil)
	url := env.listen(t)

	alice := dial(t, url+"?uploadedBy=alice")
	bob := dial(t, url+"?uploadedBy=bob")
	require.Equal(t, broadcast.EventFilesList, readFrame(t, alice).Type)
	require.Equal(t, broadcast.EventFilesList, readFrame(t, bob).Type)

	content := []byte("shared notes")
	send(t, alice, MsgUploadFile, "req-1", UploadFilePayload{
		FileName:     "notes.txt",
		RelativePath: "team/notes.txt",
		FileContent:  "data:text/plain;base64," + base64.StdEncoding.EncodeToString(content),
	})

	updated := readFrame(t, alice)
	require.Equal(t, broadcast.EventFileUpdated, updated.Type)
	var rec file.Record
	require.NoError(t, json.Unmarshal(updated.Payload, &rec))
	assert.Equal(t, "alice", rec.UploadedBy)
	assert.Equal(t, "team/notes.txt", rec.RelativePath)

	ack := readFrame(t, alice)
	require.Equal(t, broadcast.EventUploadComplete, ack.Type)
	assert.Equal(t, "req-1", ack.RequestID)
	var done broadcast.UploadComplete
	require.NoError(t, json.Unmarshal(ack.Payload, &done))
	assert.Equal(t, rec.ID, done.ID)

	seen := readFrame(t, bob)
	require.Equal(t, broadcast.EventFileUpdated, seen.Type)
	var bobRec file.Record
	require.NoError(t, json.Unmarshal(seen.Payload, &bobRec))
	assert.Equal(t, rec.ID, bobRec.ID)

	resp, err := env.module.app.Test(httptest.NewRequest(http.MethodGet, "/download/"+rec.ID, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestWebSocket_PlainBase64WithExplicitUploader(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dial(t, env.listen(t))
	readFrame(t, conn)

	send(t, conn, MsgUploadFile, "", UploadFilePayload{
		FileName:    "a.bin",
		UploadedBy:  "dave",
		FileContent: base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 3, 4}),
	})

	frame := readFrame(t, conn)
	require.Equal(t, broadcast.EventFileUpdated, frame.Type)
	var rec file.Record
	require.NoError(t, json.Unmarshal(frame.Payload, &rec))
	assert.Equal(t, "dave", rec.UploadedBy)
	assert.Equal(t, int64(5), rec.Size)
}

func TestWebSocket_DeleteReachesEveryone(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := seed(t, env.reg, "gone.txt")
	url := env.listen(t)

	a := dial(t, url)
	b := dial(t, url)
	readFrame(t, a)
	readFrame(t, b)

	send(t, a, MsgDeleteFile, "del-1", rec.ID)
	for _, conn := range []*gorillaws.Conn{a, b} {
		frame := readFrame(t, conn)
		require.Equal(t, broadcast.EventFileDeleted, frame.Type)
		assert.JSONEq(t, `"`+rec.ID+`"`, string(frame.Payload))
	}
	assert.Zero(t, env.reg.Len())

	// Deleting again is an error for the sender only.
	send(t, a, MsgDeleteFile, "del-2", map[string]string{"id": rec.ID})
	errFrame := readFrame(t, a)
	require.Equal(t, broadcast.EventError, errFrame.Type)
	assert.Equal(t, "del-2", errFrame.RequestID)
	var text string
	require.NoError(t, json.Unmarshal(errFrame.Payload, &text))
	assert.Contains(t, text, "not found")

	// b's next frame is the next real change, not a's error.
	next := seed(t, env.reg, "next.txt")
	frame := readFrame(t, b)
	require.Equal(t, broadcast.EventFileUpdated, frame.Type)
	var got file.Record
	require.NoError(t, json.Unmarshal(frame.Payload, &got))
	assert.Equal(t, next.ID, got.ID)
}

func TestWebSocket_CreateThenDeleteOrdering(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dial(t, env.listen(t))
	readFrame(t, conn)

	rec := seed(t, env.reg, "brief.txt")
	_, err := env.reg.Delete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, broadcast.EventFileUpdated, readFrame(t, conn).Type)
	assert.Equal(t, broadcast.EventFileDeleted, readFrame(t, conn).Type)
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dial(t, env.listen(t))
	readFrame(t, conn)

	tests := []struct {
		name      string
		write     func(t *testing.T)
		requestID string
		contains  string
	}{
		{
			name:      "unknown type",
			write:     func(t *testing.T) { send(t, conn, "rename_file", "r1", "x") },
			requestID: "r1",
			contains:  "Unknown message type: rename_file",
		},
		{
			name: "malformed json",
			write: func(t *testing.T) {
				require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("{not json")))
			},
			contains: "Invalid message format",
		},
		{
			name: "missing uploader",
			write: func(t *testing.T) {
				send(t, conn, MsgUploadFile, "r2", UploadFilePayload{
					FileName:    "a.txt",
					FileContent: base64.StdEncoding.EncodeToString([]byte("a")),
				})
			},
			requestID: "r2",
			contains:  "uploadedBy is required",
		},
		{
			name: "invalid base64",
			write: func(t *testing.T) {
				send(t, conn, MsgUploadFile, "r3", UploadFilePayload{
					FileName: "a.txt", UploadedBy: "eve", FileContent: "%%%",
				})
			},
			requestID: "r3",
			contains:  "not valid base64",
		},
		{
			name: "empty delete id",
			write: func(t *testing.T) {
				send(t, conn, MsgDeleteFile, "r4", "")
			},
			requestID: "r4",
			contains:  "file id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.write(t)
			frame := readFrame(t, conn)
			require.Equal(t, broadcast.EventError, frame.Type)
			assert.Equal(t, tt.requestID, frame.RequestID)
			var text string
			require.NoError(t, json.Unmarshal(frame.Payload, &text))
			assert.Contains(t, text, tt.contains)
		})
	}
	assert.Zero(t, env.reg.Len())
}

func TestWebSocket_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.MaxUploadSize = 1024
	})
	conn := dial(t, env.listen(t))
	readFrame(t, conn)

	send(t, conn, MsgUploadFile, "big", UploadFilePayload{
		FileName:    "big.bin",
		UploadedBy:  "frank",
		FileContent: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 2000)),
	})

	frame := readFrame(t, conn)
	require.Equal(t, broadcast.EventError, frame.Type)
	assert.Equal(t, "big", frame.RequestID)
	assert.Contains(t, string(frame.Payload), "payload too large")
	assert.Zero(t, env.reg.Len())
}

func TestDecodeContent(t *testing.T) {
	raw := []byte("hello")
	std := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		in      string
		max     int64
		want    []byte
		wantErr error
	}{
		{name: "plain", in: std, want: raw},
		{name: "unpadded", in: strings.TrimRight(std, "="), want: raw},
		{name: "data url", in: "data:text/plain;base64," + std, want: raw},
		{name: "data url without base64", in: "data:text/plain,hello", wantErr: registry.ErrValidation},
		{name: "empty", in: "", wantErr: registry.ErrValidation},
		{name: "garbage", in: "!!!!", wantErr: registry.ErrValidation},
		{name: "exactly at ceiling", in: std, max: 5, want: raw},
		{name: "over ceiling", in: std, max: 4, wantErr: registry.ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeContent(tt.in, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFileID(t *testing.T) {
	id, err := parseFileID(json.RawMessage(`"abc"`))
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	id, err = parseFileID(json.RawMessage(`{"id":" def "}`))
	require.NoError(t, err)
	assert.Equal(t, "def", id)

	_, err = parseFileID(json.RawMessage(`42`))
	assert.ErrorIs(t, err, registry.ErrValidation)
}

func TestReadLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.MaxUploadSize = 3000
	})
	assert.Equal(t, int64(4000+readLimitSlack), env.module.readLimit())
}
