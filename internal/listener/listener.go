// Package listener implements the Listener & Auth module: the WebSocket
// upgrade endpoint the media gateway connects to, the X-Bridge-Secret and
// rate-limit gate in front of it, and the per-connection read loop that
// dispatches wire messages into a call's STT/controller/coordinator
// pipeline. Grounded on the teacher's VoicebotWebSocket /
// createWebSocketUpgrader / handleVoicebotConnection trio
// (internal/api/handlers/voicebot.go): ping/pong keepalive with
// read-deadline refresh, an upgrader with an origin policy, and a single
// read-loop goroutine per connection. Adapted from Exotel's
// start/media/stop framing to the bridge's auth_request/session_start/
// audio_in/... vocabulary, and from the teacher's origin allowlist to the
// spec's constant-time X-Bridge-Secret header check plus a connection
// rate limiter.
package listener

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/agent"
	"github.com/vocalbridge/bridge/internal/audio"
	"github.com/vocalbridge/bridge/internal/authz"
	"github.com/vocalbridge/bridge/internal/controller"
	"github.com/vocalbridge/bridge/internal/coordinator"
	"github.com/vocalbridge/bridge/internal/recorder"
	"github.com/vocalbridge/bridge/internal/session"
	"github.com/vocalbridge/bridge/internal/stt"
	"github.com/vocalbridge/bridge/internal/tts"
	"github.com/vocalbridge/bridge/internal/wire"
	"github.com/vocalbridge/bridge/pkg/apperrors"
	"github.com/vocalbridge/bridge/pkg/config"
	"github.com/vocalbridge/bridge/pkg/logger"
	"github.com/vocalbridge/bridge/pkg/ratelimit"
	"github.com/vocalbridge/bridge/pkg/secret"
)

// readDeadline mirrors the teacher's 60s idle timeout: a connection that
// sends no message for this long is closed. Ping/pong are JSON message
// types in the wire protocol (spec §6); the listener answers each ping with
// a pong and sends no pings of its own.
const readDeadline = 60 * time.Second

// Listener owns the bridge's WebSocket endpoint and wires each accepted
// connection into a call session.
type Listener struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *session.Registry
	coordinator *coordinator.Coordinator
	recorder    *recorder.Recorder
	engines     *agent.Manager
	ttsAdapter  *tts.Adapter
	sttAdapter  *stt.Adapter
	connLimiter *ratelimit.ConnectLimiter

	upgrader websocket.Upgrader
}

func New(
	cfg *config.Config,
	logger *zap.Logger,
	registry *session.Registry,
	coord *coordinator.Coordinator,
	rec *recorder.Recorder,
	engines *agent.Manager,
	ttsAdapter *tts.Adapter,
	sttAdapter *stt.Adapter,
	connLimiter *ratelimit.ConnectLimiter,
) *Listener {
	return &Listener{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		coordinator: coord,
		recorder:    rec,
		engines:     engines,
		ttsAdapter:  ttsAdapter,
		sttAdapter:  sttAdapter,
		connLimiter: connLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeBridge is the Gin handler for the bridge's WebSocket endpoint
// (spec §4.1, P7): secret gate, then rate-limit gate, then upgrade.
func (l *Listener) ServeBridge(c *gin.Context) {
	if !secret.Equal(l.cfg.BridgeSecret, c.GetHeader("X-Bridge-Secret")) {
		apperrors.Unauthorized(c, "invalid or missing X-Bridge-Secret")
		return
	}

	if l.connLimiter != nil {
		allowed, retryAfter, err := l.connLimiter.Check(c.Request.Context(), c.ClientIP())
		if err == nil && !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			apperrors.TooManyRequests(c, "too many connection attempts")
			return
		}
	}

	conn, err := l.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.logger.Error("listener: websocket upgrade failed", zap.Error(err))
		return
	}

	go l.handleConnection(conn)
}

// handleConnection owns one gateway socket end-to-end: it reads messages
// until the connection drops, dispatching each to the call it belongs to.
func (l *Listener) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	var cs *callSession

	gc := gatewayConn{conn: conn}
	l.coordinator.Register(gc)
	defer l.coordinator.Unregister(gc)

	conn.SetReadDeadline(time.Now().Add(readDeadline))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		msg, err := wire.Decode(raw)
		if err != nil {
			l.logger.Warn("listener: dropping malformed message", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case wire.AuthRequest:
			l.handleAuthRequest(conn, m)

		case wire.SessionStart:
			cs = l.handleSessionStart(conn, m)

		case wire.SessionResume:
			cs = l.handleSessionResume(conn, m)

		case wire.CallStatus:
			l.coordinator.ResolveCallStatus(m.CallID, m.Status, m.Error)

		case wire.AudioIn:
			if cs != nil && cs.call.CallID == m.CallID {
				cs.handleAudioIn(m)
			}

		case wire.SessionEnd:
			if cs != nil && cs.call.CallID == m.CallID {
				cs.end(m.Reason)
				l.registry.Remove(cs.call.CallID)
				cs = nil
			}

		case wire.Ping:
			l.sendPong(conn, m.CallID)
		}
	}

	if cs != nil {
		cs.end("connection closed")
		l.registry.Remove(cs.call.CallID)
	}
}

func (l *Listener) handleAuthRequest(conn *websocket.Conn, m wire.AuthRequest) {
	decision := authz.Evaluate(l.cfg.Authz, m.Metadata)

	l.logger.Info("listener: auth_request evaluated",
		zap.String("call_id", m.CallID),
		zap.String("tenant_id", m.Metadata.TenantID),
		zap.Bool("authorized", decision.Authorized),
		zap.String("strategy", string(decision.Strategy)),
		logger.MaskPhoneIfPresent("phone_number", m.Metadata.PhoneNumber),
	)

	resp := wire.AuthResponse{
		Type:          wire.TypeAuthResponse,
		CallID:        m.CallID,
		CorrelationID: m.CorrelationID,
		Authorized:    decision.Authorized,
		Reason:        decision.Reason,
		Strategy:      string(decision.Strategy),
		Timestamp:     time.Now().Unix(),
	}
	l.send(conn, resp)
}

func (l *Listener) handleSessionStart(conn *websocket.Conn, m wire.SessionStart) *callSession {
	if l.registry.Count() >= l.cfg.MaxConcurrentCalls {
		l.logger.Warn("listener: rejecting session_start, concurrent call limit reached",
			zap.String("call_id", m.CallID))
		l.send(conn, wire.Hangup{Type: wire.TypeHangup, CallID: m.CallID})
		return nil
	}

	direction := session.DirectionInbound
	if m.Direction == "outbound" {
		direction = session.DirectionOutbound
	}

	call := session.NewCall(m.CallID, direction, m.Metadata, conn)
	call.AnsweredAt = time.Now()
	l.registry.Put(call)

	l.recorder.CallStart(m.CallID, m.Direction, m.Metadata)
	l.coordinator.ResolveSessionStart(m.CallID, m.Direction)

	return l.newCallSession(call)
}

func (l *Listener) handleSessionResume(conn *websocket.Conn, m wire.SessionResume) *callSession {
	call := l.registry.Get(m.CallID)
	if call == nil {
		l.logger.Warn("listener: ignoring session_resume for unknown call",
			zap.String("call_id", m.CallID))
		return nil
	}
	call.Rebind(conn)
	return l.newCallSession(call)
}

func (l *Listener) sendPong(conn *websocket.Conn, callID string) {
	l.send(conn, wire.Pong{Type: wire.TypePong, CallID: callID})
}

func (l *Listener) send(conn *websocket.Conn, msg interface{}) {
	b, err := wire.Encode(msg)
	if err != nil {
		l.logger.Error("listener: failed to encode message", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		l.logger.Warn("listener: failed to write message", zap.Error(err))
	}
}

// newCallSession wires one call's STT adapter, TTS synthesis, and
// controller together and starts its STT stream.
func (l *Listener) newCallSession(call *session.Call) *callSession {
	sender := wireSender{call: call, logger: l.logger}

	ctrl := controller.New(controller.Config{
		SentenceMinChars: l.cfg.Streaming.SentenceMinChars,
		SentenceMaxChars: l.cfg.Streaming.SentenceMaxChars,
		MaxParallelTTS:   l.cfg.Streaming.MaxParallelTTS,
		JitterFrames:     l.cfg.Streaming.JitterBufferFrames,
		Model:            l.cfg.ResponseModel,
		ResponseTimeout:  time.Duration(l.cfg.ResponseTimeoutMs) * time.Millisecond,
	}, l.engines, l.ttsAdapter.Synthesize, sender, l.logger)

	cs := &callSession{
		call:        call,
		ctrl:        ctrl,
		sttAdapter:  l.sttAdapter,
		recorder:    l.recorder,
		logger:      l.logger,
		audioIn:     make(chan []byte, 64),
		echoGateDur: time.Duration(l.cfg.Streaming.JitterBufferFrames) * 20 * time.Millisecond,
	}
	cs.start()
	return cs
}

// callSession drives one live call's inbound audio through STT and its
// transcripts through the controller.
type callSession struct {
	call       *session.Call
	ctrl       *controller.Controller
	sttAdapter *stt.Adapter
	recorder   *recorder.Recorder
	logger     *zap.Logger

	audioIn     chan []byte
	cancel      context.CancelFunc
	echoGateDur time.Duration

	droppedFrames atomic.Int64
}

// DroppedFrames reports how many inbound audio_in frames have been
// rejected for a wrong-sized 16kHz payload (spec §4.16: dropped, counter
// incremented, no session mutation).
func (cs *callSession) DroppedFrames() int64 { return cs.droppedFrames.Load() }

func (cs *callSession) start() {
	ctx, cancel := context.WithCancel(cs.call.SessionToken)
	cs.cancel = cancel

	cb := stt.Callbacks{
		OnPartial: func(text string) {},
		OnFinal: func(text string) {
			if text == "" {
				return
			}
			cs.recorder.TranscriptFinal(cs.call.CallID, "user", text)
			go cs.ctrl.FinalTranscript(cs.call.SessionToken, cs.call.NewResponseToken, text)
		},
		OnUserSpeaking: func() {
			if !cs.ctrl.IsPlayingAudio() {
				return
			}
			if time.Since(cs.ctrl.FirstFrameTime()) < cs.echoGateDur {
				return
			}
			cs.ctrl.BargeIn()
		},
	}

	go func() {
		if err := cs.sttAdapter.Stream(ctx, cs.audioIn, cb); err != nil && cs.logger != nil {
			cs.logger.Warn("listener: stt stream ended", zap.String("call_id", cs.call.CallID), zap.Error(err))
		}
	}()
}

func (cs *callSession) handleAudioIn(m wire.AudioIn) {
	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		cs.droppedFrames.Add(1)
		return
	}
	if len(raw) != audio.Frame16kBytes {
		cs.droppedFrames.Add(1)
		if cs.logger != nil {
			cs.logger.Warn("listener: dropping wrong-sized audio_in frame",
				zap.String("call_id", cs.call.CallID),
				zap.Int("size", len(raw)))
		}
		return
	}

	cs.call.ObserveRecv(m.Seq)
	pcm24k := audio.Resample16kTo24k(raw)

	select {
	case cs.audioIn <- pcm24k:
	default:
		// Back-pressure: drop the frame rather than block the read loop.
	}
}

func (cs *callSession) end(reason string) {
	if cs.cancel != nil {
		cs.cancel()
	}
	close(cs.audioIn)
	cs.recorder.CallEnd(cs.call.CallID, reason)
	cs.call.EndSession()
}

// wireSender adapts one call's connection to pacer.Sender, resampling
// 24kHz TTS frames back to the gateway's 16kHz wire rate and splitting
// them into fixed 640-byte frames (Open Question decision, spec §9:
// trailing frames shorter than one full frame are zero-padded here, at
// the send boundary, rather than upstream in the TTS/pacer layers).
type wireSender struct {
	call   *session.Call
	logger *zap.Logger
}

func (s wireSender) SendAudio(frame24k []byte) error {
	pcm16k := audio.Resample24kTo16k(frame24k)
	for _, frame := range splitInto16kFrames(pcm16k) {
		seq := s.call.NextSendSeq()
		msg := wire.AudioOut{
			Type:   wire.TypeAudioOut,
			CallID: s.call.CallID,
			Seq:    seq,
			Data:   base64.StdEncoding.EncodeToString(frame),
		}
		b, err := wire.Encode(msg)
		if err != nil {
			return err
		}
		if err := s.call.Conn().WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

func (s wireSender) SendFlush() error {
	b, err := wire.Encode(wire.Flush{Type: wire.TypeFlush, CallID: s.call.CallID})
	if err != nil {
		return err
	}
	return s.call.Conn().WriteMessage(websocket.TextMessage, b)
}

// gatewayConn adapts a raw gateway socket to coordinator.Connection so
// the Outbound Call Coordinator can dial out over any connected gateway
// before a call-specific session exists (spec §4.12).
type gatewayConn struct {
	conn *websocket.Conn
}

func (g gatewayConn) SendInitiateCall(msg wire.InitiateCall) error {
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return g.conn.WriteMessage(websocket.TextMessage, b)
}

func splitInto16kFrames(pcm16k []byte) [][]byte {
	if len(pcm16k) == 0 {
		return nil
	}
	var frames [][]byte
	for offset := 0; offset < len(pcm16k); offset += audio.Frame16kBytes {
		end := offset + audio.Frame16kBytes
		if end > len(pcm16k) {
			padded := make([]byte, audio.Frame16kBytes)
			copy(padded, pcm16k[offset:])
			frames = append(frames, padded)
			break
		}
		frames = append(frames, pcm16k[offset:end])
	}
	return frames
}
