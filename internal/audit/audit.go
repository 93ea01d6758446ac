// Package audit records security-relevant events. Recording is
// best-effort and asynchronous: events are queued and persisted by a
// background worker, and a full queue drops the event rather than block
// the primary operation.
package audit

import (
	"context"
	"sync"
	"time"

	"crewbase.org/internal/auth"
	"crewbase.org/internal/ids"
	"crewbase.org/internal/obs"
)

type ctxKey string

const requestMetaKey ctxKey = "audit_request_meta"

// RequestMeta carries the HTTP request attributes attached to every audit
// event recorded during that request.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
	Endpoint  string
}

// WithRequestMeta attaches request attributes to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

// requestMetaFromContext extracts request attributes if present.
func requestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if v, ok := ctx.Value(requestMetaKey).(RequestMeta); ok {
		return v
	}
	return RequestMeta{}
}

const defaultQueueSize = 256

// Recorder implements auth.AuditRecorder. Events are enriched from the
// request context, mirrored to the JSON log, and persisted via the store
// by a single worker goroutine.
type Recorder struct {
	store auth.AuditStore
	queue chan auth.AuditEvent

	closeOnce sync.Once
	done      chan struct{}
}

var _ auth.AuditRecorder = (*Recorder)(nil)

// NewRecorder starts the worker. store may be nil, in which case events
// only reach the log.
func NewRecorder(store auth.AuditStore) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan auth.AuditEvent, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues the event. Never blocks; a full queue drops the event
// and bumps a metric.
func (r *Recorder) Record(ctx context.Context, event auth.AuditEvent) {
	meta := requestMetaFromContext(ctx)
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = meta.IP
	}
	if event.UserAgent == "" {
		event.UserAgent = meta.UserAgent
	}
	if event.Endpoint == "" {
		event.Endpoint = meta.Endpoint
	}
	logEvent(event, meta.RequestID)

	select {
	case r.queue <- event:
	default:
		obs.AuditDropped()
	}
}

// Close stops the worker after draining queued events.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.queue {
		if r.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Append(ctx, &event); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "audit append failed",
				"error": err.Error(),
			})
		}
		cancel()
	}
}

// logEvent mirrors the event to the structured log so audit stays
// observable even when the store write is lost.
func logEvent(event auth.AuditEvent, requestID string) {
	entry := map[string]any{
		"ts":            event.OccurredAt.Format(time.RFC3339Nano),
		"type":          "audit",
		"action":        event.Action,
		"resource_type": event.ResourceType,
		"status":        event.Status,
	}
	if requestID != "" {
		entry["request_id"] = requestID
	}
	if event.ActorUserID != "" {
		entry["actor_user_id"] = event.ActorUserID
	}
	if event.OrganizationID != "" {
		entry["organization_id"] = event.OrganizationID
	}
	if event.ResourceID != "" {
		entry["resource_id"] = event.ResourceID
	}
	if event.Endpoint != "" {
		entry["endpoint"] = event.Endpoint
	}
	if len(event.Metadata) > 0 {
		fields := make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			fields[k] = v
		}
		entry["fields"] = fields
	}
	obs.LogRequest(entry)
}
