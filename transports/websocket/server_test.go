package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/core"
	"copilot/protocol"
)

type commandLog struct {
	mu       sync.Mutex
	started  []string
	segments []string
	frames   []core.AudioChunk
	process  int
	cleared  int
	ch       chan struct{}
}

func newCommandLog() *commandLog {
	return &commandLog{ch: make(chan struct{}, 32)}
}

func (c *commandLog) handler() Handler {
	return Handler{
		OnStartSession: func(profile, jobContext, systemInstruction string) {
			c.mu.Lock()
			c.started = append(c.started, profile+"|"+jobContext)
			c.mu.Unlock()
			c.ch <- struct{}{}
		},
		OnProcessNow: func() {
			c.mu.Lock()
			c.process++
			c.mu.Unlock()
			c.ch <- struct{}{}
		},
		OnClearSession: func() {
			c.mu.Lock()
			c.cleared++
			c.mu.Unlock()
			c.ch <- struct{}{}
		},
		OnTranscriptSegment: func(text string, final bool) {
			c.mu.Lock()
			c.segments = append(c.segments, text)
			c.mu.Unlock()
			c.ch <- struct{}{}
		},
		OnAudioFrame: func(chunk core.AudioChunk) {
			c.mu.Lock()
			c.frames = append(c.frames, chunk)
			c.mu.Unlock()
			c.ch <- struct{}{}
		},
	}
}

func (c *commandLog) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerDispatchesCommands(t *testing.T) {
	cmds := newCommandLog()
	s := NewServer(ServerConfig{AudioFormat: core.PCM, AudioSampleRate: 16000, Logger: core.NewDevelopmentLogger()}, cmds.handler())
	conn := dialTestServer(t, s)

	start, err := protocol.Marshal(protocol.MsgStartSession, protocol.StartSessionPayload{Profile: "p", JobContext: "j"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, start))
	cmds.wait(t)

	segment, err := protocol.Marshal(protocol.MsgTranscriptSegment, protocol.TranscriptSegmentPayload{Text: "what is go", Final: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, segment))
	cmds.wait(t)

	process, err := protocol.Marshal(protocol.MsgProcessNow, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, process))
	cmds.wait(t)

	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	assert.Equal(t, []string{"p|j"}, cmds.started)
	assert.Equal(t, []string{"what is go"}, cmds.segments)
	assert.Equal(t, 1, cmds.process)
}

func TestServerRoutesBinaryFramesToAudio(t *testing.T) {
	cmds := newCommandLog()
	s := NewServer(ServerConfig{AudioFormat: core.ULAW, AudioSampleRate: 8000, Logger: core.NewDevelopmentLogger()}, cmds.handler())
	conn := dialTestServer(t, s)

	frame := []byte{0x7f, 0x80, 0x7f, 0x80}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	cmds.wait(t)

	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	require.Len(t, cmds.frames, 1)
	assert.Equal(t, frame, cmds.frames[0].Data)
	assert.Equal(t, core.ULAW, cmds.frames[0].Format)
	assert.Equal(t, 8000, cmds.frames[0].SampleRate)
}

func TestServerPublishesAudioLevel(t *testing.T) {
	cmds := newCommandLog()
	s := NewServer(ServerConfig{AudioFormat: core.PCM, AudioSampleRate: 16000, Logger: core.NewDevelopmentLogger()}, cmds.handler())
	conn := dialTestServer(t, s)

	// A loud 16-bit PCM frame: constant samples at half full scale.
	frame := make([]byte, 0, 64)
	for i := 0; i < 32; i++ {
		frame = append(frame, 0x00, 0x40)
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	cmds.wait(t)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msgType, payload, err := protocol.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgAudioLevel, msgType)
	p, err := protocol.UnmarshalPayload[protocol.AudioLevelPayload](payload)
	require.NoError(t, err)
	assert.Greater(t, p.Level, 0.0)
	assert.LessOrEqual(t, p.Level, 1.0)
}

func TestServerSendsOutboundMessages(t *testing.T) {
	s := NewServer(ServerConfig{Logger: core.NewDevelopmentLogger()}, Handler{})
	conn := dialTestServer(t, s)

	// The connection registers on the server side asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		ready := s.conn != nil
		s.mu.Unlock()
		if ready {
			break
		}
		require.False(t, time.Now().After(deadline), "connection never registered")
		time.Sleep(time.Millisecond)
	}

	s.SendAnswer("what is go", "a compiled language")
	s.SendProcessingState(true)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msgType, payload, err := protocol.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgAnswer, msgType)
	p, err := protocol.UnmarshalPayload[protocol.AnswerPayload](payload)
	require.NoError(t, err)
	assert.Equal(t, "a compiled language", p.Answer)

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msgType, payload, err = protocol.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgProcessingState, msgType)
	st, err := protocol.UnmarshalPayload[protocol.ProcessingStatePayload](payload)
	require.NoError(t, err)
	assert.True(t, st.Processing)
}

func TestServerIgnoresMalformedMessages(t *testing.T) {
	cmds := newCommandLog()
	s := NewServer(ServerConfig{Logger: core.NewDevelopmentLogger()}, cmds.handler())
	conn := dialTestServer(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{{{")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"no_such_command"}`)))

	// The connection stays alive and later commands still dispatch.
	process, err := protocol.Marshal(protocol.MsgProcessNow, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, process))
	cmds.wait(t)

	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	assert.Equal(t, 1, cmds.process)
}
