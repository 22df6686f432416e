package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Shidfar/sirius/internal/bus"
	"github.com/Shidfar/sirius/internal/engine"
	"github.com/Shidfar/sirius/internal/eventstore"
	"github.com/Shidfar/sirius/internal/protocol"
	"github.com/Shidfar/sirius/internal/request"
	"github.com/Shidfar/sirius/internal/scheduler"
	"github.com/Shidfar/sirius/internal/wavcodec"
)

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosing
	stateClosed
)

// A session tolerates a few protocol violations (undecodable envelopes,
// binary frames) before it is closed.
const maxProtocolViolations = 5

// session owns one connection: it reads frames, dispatches synthesis jobs,
// and writes responses. At most one job is outstanding at a time; the
// metadata frame and its binary payload are written back to back under one
// lock so nothing interleaves between them.
type session struct {
	id     string
	gw     *Gateway
	conn   *websocket.Conn
	remote string
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	writeMu sync.Mutex

	jobMu sync.Mutex
	job   *scheduler.Job
	jobWG sync.WaitGroup

	violations int
}

func newSession(g *Gateway, conn *websocket.Conn, remote string) *session {
	ctx, cancel := context.WithCancel(g.ctx)
	id := uuid.NewString()
	s := &session{
		id:     id,
		gw:     g,
		conn:   conn,
		remote: remote,
		log: g.log.With(
			slog.String("session_id", id),
			slog.String("remote", remote)),
		ctx:    ctx,
		cancel: cancel,
	}
	s.state.Store(int32(stateConnecting))
	return s
}

func (s *session) run() {
	defer s.close()

	s.state.Store(int32(stateActive))
	s.log.Info("session opened")
	s.recordSession()

	if s.gw.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(int64(s.gw.cfg.MaxMessageBytes))
	}

	// unblock the read loop when the gateway shuts down
	go func() {
		<-s.ctx.Done()
		s.enterClosing()
		_ = s.conn.Close()
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("transport error", slog.String("error", err.Error()))
			}
			return
		}
		switch msgType {
		case websocket.TextMessage:
			if !s.handleFrame(data) {
				return
			}
		case websocket.BinaryMessage:
			s.log.Warn("unexpected binary frame")
			s.writeError(protocol.KindMalformedRequest, "binary frames are not accepted")
			if s.violation() {
				return
			}
		}
	}
}

// handleFrame processes one inbound text frame; false means the session must
// enter Closing.
func (s *session) handleFrame(data []byte) bool {
	var env protocol.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.writeError(protocol.KindMalformedRequest, "invalid request: "+err.Error())
		return !s.violation()
	}
	switch env.Type {
	case protocol.TypePing:
		s.violations = 0
		s.writeJSON(protocol.Pong{Type: protocol.TypePong})
	case protocol.TypeSynthesize:
		s.violations = 0
		s.handleSynthesize(env.Data)
	default:
		s.writeError(protocol.KindMalformedRequest, fmt.Sprintf("unknown request type %q", env.Type))
		return !s.violation()
	}
	return true
}

func (s *session) violation() bool {
	s.violations++
	if s.violations >= maxProtocolViolations {
		s.log.Warn("closing session after repeated protocol violations",
			slog.Int("violations", s.violations))
		return true
	}
	return false
}

func (s *session) handleSynthesize(data []byte) {
	req, err := s.gw.decoder.DecodeSynthesize(data)
	if err != nil {
		var malformed *request.MalformedError
		var invalid *request.ValidationError
		switch {
		case errors.As(err, &invalid):
			s.writeError(protocol.KindValidationError, err.Error())
		case errors.As(err, &malformed):
			s.writeError(protocol.KindMalformedRequest, err.Error())
		default:
			s.writeError(protocol.KindMalformedRequest, err.Error())
		}
		return
	}

	s.jobMu.Lock()
	if s.job != nil {
		s.jobMu.Unlock()
		s.writeError(protocol.KindAlreadyInProgress, "a synthesis request is already in flight")
		return
	}
	job, err := s.gw.sched.Submit(s.ctx, engine.Params{
		Text:   req.Text,
		Voices: req.Voices,
		Lang:   req.Lang,
		Speed:  req.Speed,
	})
	if err != nil {
		s.jobMu.Unlock()
		s.writeError(protocol.KindBusy, "server is at capacity, try again later")
		s.recordJob("", eventstore.EventJobRejected, nil)
		return
	}
	s.job = job
	s.jobMu.Unlock()

	s.log.Info("job accepted",
		slog.String("job_id", job.ID),
		slog.Int("text_len", len(req.Text)),
		slog.String("lang", req.Lang))
	s.recordJob(job.ID, eventstore.EventJobAccepted, map[string]any{
		"text_len": len(req.Text),
		"lang":     req.Lang,
		"speed":    req.Speed,
	})

	s.jobWG.Add(1)
	go func() {
		defer s.jobWG.Done()
		s.awaitJob(job)
	}()
}

// awaitJob waits for the job's terminal outcome and writes the response.
// The read loop keeps running meanwhile so concurrent requests can be
// answered with already_in_progress.
func (s *session) awaitJob(job *scheduler.Job) {
	defer func() {
		s.jobMu.Lock()
		s.job = nil
		s.jobMu.Unlock()
	}()

	var out scheduler.Outcome
	select {
	case out = <-job.Done():
	case <-s.ctx.Done():
		// the worker observes the cancelled context; no response is owed
		s.recordJob(job.ID, eventstore.EventJobCancelled, nil)
		s.publishJob(job.ID, "cancelled", 0, 0)
		return
	}

	switch out.Status {
	case scheduler.StatusDone:
		s.streamAudio(job, out.Audio)
	case scheduler.StatusTimeout:
		s.writeError(protocol.KindTimeout, "request timed out waiting for a worker")
		s.recordJob(job.ID, eventstore.EventJobTimeout, nil)
		s.publishJob(job.ID, "timeout", 0, 0)
	case scheduler.StatusCancelled:
		if s.ctx.Err() == nil {
			s.writeError(protocol.KindCancelled, "synthesis was cancelled")
		}
		s.recordJob(job.ID, eventstore.EventJobCancelled, nil)
		s.publishJob(job.ID, "cancelled", 0, 0)
	case scheduler.StatusFailed:
		s.writeError(protocol.KindSynthesisFailure, out.Err.Error())
		s.recordJob(job.ID, eventstore.EventJobFailed, map[string]any{"error": out.Err.Error()})
		s.publishJob(job.ID, "failed", 0, 0)
	}
}

func (s *session) streamAudio(job *scheduler.Job, raw *engine.RawAudio) {
	payload, err := wavcodec.Encode(raw)
	if err != nil {
		s.log.Error("failed to encode audio container",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		s.writeError(protocol.KindSynthesisFailure, "failed to encode audio container")
		s.recordJob(job.ID, eventstore.EventJobFailed, map[string]any{"error": err.Error()})
		return
	}

	meta := protocol.AudioReady{
		Type:         protocol.TypeAudioReady,
		DurationSecs: raw.DurationSecs(),
		SampleRate:   raw.SampleRate,
		Channels:     raw.Channels,
		SizeBytes:    len(payload),
	}
	if err := s.writeAudio(meta, payload); err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("failed to write audio response", slog.String("error", err.Error()))
		}
		return
	}

	s.log.Info("synthesis complete",
		slog.String("job_id", job.ID),
		slog.Float64("duration_secs", meta.DurationSecs),
		slog.Int("size_bytes", meta.SizeBytes))
	s.recordJob(job.ID, eventstore.EventJobCompleted, map[string]any{
		"duration_secs": meta.DurationSecs,
		"size_bytes":    meta.SizeBytes,
	})
	s.publishJob(job.ID, "completed", meta.DurationSecs, meta.SizeBytes)
}

// writeAudio sends the metadata frame immediately followed by the binary
// payload. Both frames go out under one lock so no other frame for this
// session can slip between them.
func (s *session) writeAudio(meta protocol.AudioReady, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closing() {
		return context.Canceled
	}
	s.setWriteDeadline()
	if err := s.conn.WriteJSON(meta); err != nil {
		return err
	}
	s.setWriteDeadline()
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (s *session) writeJSON(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closing() {
		return
	}
	s.setWriteDeadline()
	if err := s.conn.WriteJSON(v); err != nil && s.ctx.Err() == nil {
		s.log.Warn("failed to write frame", slog.String("error", err.Error()))
	}
}

func (s *session) writeError(kind, reason string) {
	s.writeJSON(protocol.ErrorFrame{Type: protocol.TypeError, Kind: kind, Reason: reason})
}

func (s *session) setWriteDeadline() {
	if s.gw.cfg.WriteTimeoutMS > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Duration(s.gw.cfg.WriteTimeoutMS) * time.Millisecond))
	}
}

func (s *session) closing() bool {
	return sessionState(s.state.Load()) >= stateClosing
}

func (s *session) enterClosing() {
	s.state.CompareAndSwap(int32(stateActive), int32(stateClosing))
}

func (s *session) close() {
	s.enterClosing()
	s.cancel() // cancels any outstanding job
	s.jobWG.Wait()
	_ = s.conn.Close()
	s.state.Store(int32(stateClosed))
	s.log.Info("session closed")
}

func (s *session) recordSession() {
	if s.gw.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.gw.store.AppendSession(ctx, s.id, s.remote); err != nil {
		s.log.Warn("failed to record session", slog.String("error", err.Error()))
	}
}

func (s *session) recordJob(jobID, eventType string, payload map[string]any) {
	if s.gw.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			s.log.Warn("failed to marshal job event", slog.String("error", err.Error()))
			return
		}
	}
	evt := eventstore.Event{SessionID: s.id, JobID: jobID, Type: eventType, Payload: data}
	if err := s.gw.store.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("failed to record job event", slog.String("error", err.Error()))
	}
}

func (s *session) publishJob(jobID, outcome string, durationSecs float64, sizeBytes int) {
	if s.gw.bus == nil {
		return
	}
	s.gw.bus.PublishJobEvent(bus.JobEvent{
		SessionID:    s.id,
		JobID:        jobID,
		Outcome:      outcome,
		DurationSecs: durationSecs,
		SizeBytes:    sizeBytes,
	})
}
