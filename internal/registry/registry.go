// Package registry is the stream lifecycle controller: a concurrent mapping
// from display name to session, enforcing at-most-one-transcoder-per-name
// and idle-timeout eviction. It is the one place in the broker where
// contention matters. Touch, Stop, ReapIdle and List keep their critical
// sections to a map lookup, mutation or timestamp write, and process kill
// runs outside the guard. EnsureRunning holds the guard across the child's
// start so that the double-check, the spawn and the insert are atomic.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"

	"github.com/kestrelstream/broker/internal/driver"
	"github.com/kestrelstream/broker/internal/metrics"
	"github.com/kestrelstream/broker/internal/streamkey"
	"github.com/kestrelstream/broker/pkg/models"
)

// session is the registry's internal, mutable record. Snapshot is the
// read-only copy handed to callers outside the guard.
type session struct {
	name          string
	effectiveURL  string
	streamKey     string
	handle        *driver.Handle
	createdAt     time.Time
	lastHeartbeat time.Time
}

func (s *session) snapshot() models.SessionSnapshot {
	return models.SessionSnapshot{
		Name:          s.name,
		StreamKey:     s.streamKey,
		EffectiveURL:  s.effectiveURL,
		CreatedAt:     s.createdAt,
		LastHeartbeat: s.lastHeartbeat,
	}
}

// SpawnLocker is consulted by EnsureRunning, when configured, to coordinate
// spawns across multiple broker replicas sharing one origin. A nil Locker
// (the default) makes EnsureRunning behave exactly as specified for a
// single-process deployment: the in-memory mutex alone enforces the
// single-transcoder invariant.
type SpawnLocker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// EventSink receives one event per lifecycle transition. A nil sink is a
// no-op; nothing in the registry depends on events being delivered.
type EventSink interface {
	Publish(ctx context.Context, event models.SessionEvent)
}

// Registry is the concurrency core described in §4.3.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session

	driver     *driver.Driver
	originHost string
	logger     zerolog.Logger

	locker SpawnLocker
	events EventSink
}

func New(d *driver.Driver, originHost string, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]*session),
		driver:     d,
		originHost: originHost,
		logger:     logger,
	}
}

// WithLocker installs an optional distributed spawn lock (§10.3). Must be
// called before the registry is used concurrently.
func (r *Registry) WithLocker(l SpawnLocker) *Registry {
	r.locker = l
	return r
}

// WithEvents installs an optional lifecycle event sink (§10.4).
func (r *Registry) WithEvents(e EventSink) *Registry {
	r.events = e
	return r
}

// EnsureRunning returns the snapshot of the running session for name,
// spawning a new transcoder if none exists. rtspOverride, if non-empty,
// is used as the effective source URL instead of configuredURL; per the
// spec's mandated name-resolution semantics, an existing session for name
// is reused regardless of whether its effective URL matches rtspOverride —
// the display name is the key and the first writer wins until the session
// ends.
func (r *Registry) EnsureRunning(ctx context.Context, name, rtspOverride, configuredURL string) (models.SessionSnapshot, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "registry.ensure_running")
	defer span.Finish()
	span.SetTag("name", name)

	r.mu.Lock()
	if s, ok := r.sessions[name]; ok && !s.handle.Exited() {
		snap := s.snapshot()
		r.mu.Unlock()
		return snap, nil
	}
	r.mu.Unlock()

	effectiveURL := configuredURL
	if rtspOverride != "" {
		effectiveURL = rtspOverride
	}
	key := streamkey.Derive(name)

	if r.locker != nil {
		acquired, err := r.locker.AcquireLock(ctx, "spawn:"+name, 10*time.Second)
		if err == nil && acquired {
			defer r.locker.ReleaseLock(context.Background(), "spawn:"+name)
		}
		// A lock error or a lost race falls through to the local
		// double-check below, which remains authoritative for this
		// process; the distributed lock only narrows the window in
		// which two replicas both spawn, it never blocks progress.
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine may have inserted while we were
	// building effectiveURL/key or waiting on the distributed lock.
	if s, ok := r.sessions[name]; ok && !s.handle.Exited() {
		return s.snapshot(), nil
	}

	handle, err := r.driver.Spawn(effectiveURL, key, r.originHost)
	if err != nil {
		r.logger.Error().Str("name", name).Err(err).Msg("spawn failed")
		metrics.RecordSpawn(false)
		metrics.RecordError("registry", "spawn_failed")
		opentracingLogError(span, err)
		return models.SessionSnapshot{}, err
	}
	metrics.RecordSpawn(true)

	now := time.Now()
	s := &session{
		name:          name,
		effectiveURL:  effectiveURL,
		streamKey:     key,
		handle:        handle,
		createdAt:     now,
		lastHeartbeat: now,
	}
	r.sessions[name] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))

	r.publish(ctx, models.SessionEvent{Type: "session.started", Name: name, StreamKey: key, Timestamp: now})

	return s.snapshot(), nil
}

func opentracingLogError(span opentracing.Span, err error) {
	span.SetTag("error", true)
	span.LogKV("error", err.Error())
}

// TouchResult mirrors the Found | NotFound outcome described in §4.3.
type TouchResult int

const (
	Found TouchResult = iota
	NotFound
)

// Touch refreshes name's heartbeat timestamp. It is the hot path and does
// exactly one map lookup and one timestamp write under the guard.
func (r *Registry) Touch(name string) TouchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		return NotFound
	}
	now := time.Now()
	if now.After(s.lastHeartbeat) {
		s.lastHeartbeat = now
	}
	return Found
}

// Stop removes name from the registry, then stops its child outside the
// guard. A no-op if name has no session.
func (r *Registry) Stop(ctx context.Context, name, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	metrics.ActiveSessions.Set(float64(remaining))

	r.driver.Stop(ctx, s.handle)
	r.publish(ctx, models.SessionEvent{Type: "session.stopped", Name: name, StreamKey: s.streamKey, Reason: reason, Timestamp: time.Now()})
}

// ReapIdle stops every session whose last heartbeat is older than threshold
// or whose child has already exited. Called by the reaper on each tick.
func (r *Registry) ReapIdle(ctx context.Context, threshold time.Duration, now time.Time) {
	type victim struct {
		name   string
		reason string
	}

	r.mu.Lock()
	victims := make([]victim, 0)
	for name, s := range r.sessions {
		switch {
		case s.handle.Exited():
			victims = append(victims, victim{name, "exited"})
		case now.Sub(s.lastHeartbeat) > threshold:
			victims = append(victims, victim{name, "idle"})
		}
	}
	r.mu.Unlock()

	for _, v := range victims {
		r.Stop(ctx, v.name, v.reason)
		metrics.RecordReap(v.reason)
	}

	metrics.ActiveSessions.Set(float64(r.Len()))
}

// List returns a snapshot of every active session, for GET /api/streams'
// liveness flag. The active-session gauge is set from the map length, not
// from List.
func (r *Registry) List() []models.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	return out
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every active session. Used during graceful process
// shutdown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.Stop(ctx, name, "shutdown")
	}
}

func (r *Registry) publish(ctx context.Context, event models.SessionEvent) {
	if r.events != nil {
		r.events.Publish(ctx, event)
	}
}
