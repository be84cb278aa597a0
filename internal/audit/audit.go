// internal/audit/audit.go
//
// Fire-and-forget notifications around metadata mutations.
//
// Context
// -------
// The Service emits a start event before it calls the store and an end or
// error event after.  Emission must never slow down or fail the request, so
// Notify only stamps the event with caller facts from ctx and pushes it onto
// a bounded channel.  One background worker hands events to a Sink.
//
// Workflow
// --------
//  1. `NewDispatcher(sink, buffer, log)` starts the worker.
//  2. `Notify(ctx, ev)` copies identity, request id, and request info onto
//     ev and enqueues it; a full buffer drops the event and bumps
//     metadata_audit_dropped_total.
//  3. `Close()` stops intake, drains the queue, and waits for the worker.
//
// Notes
// -----
//   - Sink errors are logged and counted, never returned.
//   - Events sent after Close are dropped.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/auth"
	"github.com/yanizio/metastore/internal/metrics"
	"github.com/yanizio/metastore/internal/requestinfo"
)

// Phase of an operation an event describes.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
	PhaseError Phase = "error"
)

// Event is one audit record.  EventType follows the `metadata.<verb>`
// naming used by the notification consumers.
type Event struct {
	EventType string                   `json:"event_type"`
	Phase     Phase                    `json:"phase"`
	ProjectID string                   `json:"project_id"`
	UserID    string                   `json:"user_id,omitempty"`
	RequestID string                   `json:"request_id,omitempty"`
	Params    map[string]any           `json:"params,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Request   *requestinfo.RequestInfo `json:"request,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// Sink delivers events somewhere durable.
type Sink interface {
	Emit(Event) error
}

// Notifier is what the Service depends on.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// -----------------------------------------------------------------------------
// Dispatcher
// -----------------------------------------------------------------------------

// Dispatcher is an asynchronous Notifier.  Zero value is unusable; build
// with NewDispatcher.
type Dispatcher struct {
	sink Sink
	log  *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

// NewDispatcher starts the worker.  buffer < 1 is raised to 1.
func NewDispatcher(sink Sink, buffer int, log *zap.SugaredLogger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Dispatcher{
		sink: sink,
		log:  log,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify stamps ev and enqueues it without blocking.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if id, ok := auth.FromContext(ctx); ok {
		ev.UserID = id.UserID
		if ev.ProjectID == "" {
			ev.ProjectID = id.ProjectID
		}
	}
	ev.RequestID = middleware.GetReqID(ctx)
	ev.Request = requestinfo.FromContext(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.AuditDroppedTotal.Inc()
		return
	}
	select {
	case d.ch <- ev:
	default:
		metrics.AuditDroppedTotal.Inc()
		d.log.Warnw("audit buffer full, event dropped",
			"event_type", ev.EventType, "phase", ev.Phase)
	}
}

// Close drains pending events and stops the worker.  Safe to call twice.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		if err := d.sink.Emit(ev); err != nil {
			metrics.AuditDroppedTotal.Inc()
			d.log.Errorw("audit sink failed",
				"event_type", ev.EventType, "phase", ev.Phase, "err", err)
			continue
		}
		metrics.AuditEventsTotal.WithLabelValues(string(ev.Phase)).Inc()
	}
}

// -----------------------------------------------------------------------------
// Sinks
// -----------------------------------------------------------------------------

// LogSink writes events as structured log lines on a dedicated logger.
type LogSink struct {
	Log *zap.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(ev Event) error {
	fields := []zap.Field{
		zap.String("event_type", ev.EventType),
		zap.String("phase", string(ev.Phase)),
		zap.String("project_id", ev.ProjectID),
		zap.String("user_id", ev.UserID),
		zap.String("request_id", ev.RequestID),
		zap.Any("params", ev.Params),
		zap.Time("at", ev.Timestamp),
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	if ev.Request != nil {
		fields = append(fields,
			zap.String("client_ip", ev.Request.ClientIP),
			zap.String("country", ev.Request.CountryISO),
			zap.String("ua_browser", ev.Request.UA.Browser),
			zap.String("ua_device", ev.Request.UA.Device))
	}
	s.Log.Info("audit", fields...)
	return nil
}
