// Package websocket hosts the UI-facing WebSocket endpoint. A single UI
// client connects, streams transcript segments (and optionally raw audio
// frames) to the server, and receives session status, processing state,
// and answers back.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"copilot/core"
	"copilot/protocol"
	"copilot/utils/audio"
)

const (
	defaultSendBufferSize = 256
	writeTimeout          = 10 * time.Second
)

// ServerConfig configures the UI WebSocket server.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8765".
	Addr string
	// Path is the WebSocket endpoint path.
	Path string
	// AudioFormat describes binary frames received from the UI.
	AudioFormat core.AudioEncodingFormat
	// AudioSampleRate is the sample rate of binary frames.
	AudioSampleRate int
	Logger          *core.Logger
}

// Handler receives decoded UI commands. All methods are invoked from the
// connection's read goroutine.
type Handler struct {
	OnStartSession      func(profile, jobContext, systemInstruction string)
	OnProcessNow        func()
	OnClearSession      func()
	OnClearBuffer       func()
	OnTranscriptSegment func(text string, final bool)
	OnAudioFrame        func(chunk core.AudioChunk)
}

// Server accepts one UI client at a time and relays protocol envelopes in
// both directions. Outbound messages are buffered and written by a single
// write goroutine per connection.
type Server struct {
	config  ServerConfig
	handler Handler
	logger  *core.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu     sync.Mutex
	conn   *websocket.Conn
	sendCh chan []byte
	connWG sync.WaitGroup
}

// NewServer creates a new UI WebSocket server.
func NewServer(config ServerConfig, handler Handler) *Server {
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.AudioSampleRate == 0 {
		config.AudioSampleRate = 16000
	}
	if config.Logger == nil {
		config.Logger = core.GetLogger()
	}
	return &Server{
		config:  config,
		handler: handler,
		logger:  config.Logger.With(map[string]interface{}{"component": "ws"}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The UI is a local companion app; origin checks add nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetHandler replaces the command handler. Intended for wiring after
// construction, before Start; later calls only affect new messages.
func (s *Server) SetHandler(handler Handler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Start begins listening. It returns once the listener is running; serve
// errors after startup are logged and shut the process's server down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWS)

	s.httpSrv = &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("websocket: listen %q: %w", s.config.Addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.With(map[string]interface{}{"addr": s.config.Addr, "path": s.config.Path}).Info("ui server listening")
	return nil
}

// Stop closes the active connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.connWG.Wait()

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// SendSessionStatus pushes the current session summary to the UI.
func (s *Server) SendSessionStatus(p protocol.SessionStatusPayload) {
	s.enqueue(protocol.MsgSessionStatus, p)
}

// SendProcessingState pushes the gate state to the UI.
func (s *Server) SendProcessingState(processing bool) {
	s.enqueue(protocol.MsgProcessingState, protocol.ProcessingStatePayload{Processing: processing})
}

// SendPartialTranscript pushes the buffered transcript preview to the UI.
func (s *Server) SendPartialTranscript(text string, wordCount int) {
	s.enqueue(protocol.MsgPartialTranscript, protocol.PartialTranscriptPayload{Text: text, WordCount: wordCount})
}

// SendAudioLevel pushes an input-level sample to the UI meter.
func (s *Server) SendAudioLevel(level float64) {
	s.enqueue(protocol.MsgAudioLevel, protocol.AudioLevelPayload{Level: level})
}

// publishLevel decodes an inbound frame and forwards its RMS level to the
// UI meter. Undecodable frames are logged and skipped.
func (s *Server) publishLevel(chunk core.AudioChunk) {
	pcm, err := audio.DecodeFrame(chunk)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("failed to decode audio frame for level meter")
		return
	}
	if level, err := audio.RMSLevel(pcm); err == nil {
		s.SendAudioLevel(level)
	}
}

// SendAnswer pushes a completed question and answer to the UI.
func (s *Server) SendAnswer(question, answer string) {
	s.enqueue(protocol.MsgAnswer, protocol.AnswerPayload{Question: question, Answer: answer})
}

// SendError reports a failed operation to the UI.
func (s *Server) SendError(kind, message string) {
	s.enqueue(protocol.MsgError, protocol.ErrorPayload{Kind: kind, Message: message})
}

func (s *Server) enqueue(msgType protocol.MessageType, payload interface{}) {
	s.mu.Lock()
	sendCh := s.sendCh
	s.mu.Unlock()
	if sendCh == nil {
		return
	}

	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case sendCh <- data:
	default:
		// Buffer full — drop oldest and push new.
		select {
		case <-sendCh:
		default:
		}
		select {
		case sendCh <- data:
		default:
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("upgrade failed")
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		// One UI at a time. The newest connection wins.
		s.conn.Close()
	}
	s.conn = conn
	s.sendCh = make(chan []byte, defaultSendBufferSize)
	sendCh := s.sendCh
	s.mu.Unlock()

	s.logger.With(map[string]interface{}{"remote": conn.RemoteAddr().String()}).Info("ui connected")

	done := make(chan struct{})
	s.connWG.Add(2)
	go s.writeLoop(conn, sendCh, done)
	go s.readLoop(conn, done)
}

func (s *Server) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.sendCh = nil
		}
		s.mu.Unlock()
		s.connWG.Done()
		s.logger.Info("ui disconnected")
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.With(map[string]interface{}{"error": err}).Warn("ui connection lost")
			}
			return
		}

		s.mu.Lock()
		handler := s.handler
		s.mu.Unlock()

		if messageType == websocket.BinaryMessage {
			chunk := core.AudioChunk{
				Data:       data,
				SampleRate: s.config.AudioSampleRate,
				Channels:   1,
				Format:     s.config.AudioFormat,
			}
			if handler.OnAudioFrame != nil {
				handler.OnAudioFrame(chunk)
			}
			s.publishLevel(chunk)
			continue
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			s.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from ui")
			continue
		}
		s.dispatch(handler, msgType, payload)
	}
}

func (s *Server) dispatch(handler Handler, msgType protocol.MessageType, payload []byte) {
	switch msgType {
	case protocol.MsgStartSession:
		p, err := protocol.UnmarshalPayload[protocol.StartSessionPayload](payload)
		if err != nil {
			s.logger.With(map[string]interface{}{"error": err}).Warn("invalid start_session payload")
			return
		}
		if handler.OnStartSession != nil {
			handler.OnStartSession(p.Profile, p.JobContext, p.SystemInstruction)
		}

	case protocol.MsgProcessNow:
		if handler.OnProcessNow != nil {
			handler.OnProcessNow()
		}

	case protocol.MsgClearSession:
		if handler.OnClearSession != nil {
			handler.OnClearSession()
		}

	case protocol.MsgClearBuffer:
		if handler.OnClearBuffer != nil {
			handler.OnClearBuffer()
		}

	case protocol.MsgTranscriptSegment:
		p, err := protocol.UnmarshalPayload[protocol.TranscriptSegmentPayload](payload)
		if err != nil {
			s.logger.With(map[string]interface{}{"error": err}).Warn("invalid transcript_segment payload")
			return
		}
		if handler.OnTranscriptSegment != nil {
			handler.OnTranscriptSegment(p.Text, p.Final)
		}

	default:
		s.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from ui")
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sendCh chan []byte, done chan struct{}) {
	defer s.connWG.Done()
	for {
		select {
		case data := <-sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.With(map[string]interface{}{"error": err}).Warn("write to ui failed")
				return
			}
		case <-done:
			return
		}
	}
}
