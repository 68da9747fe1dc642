// Package driver spawns and supervises the external media-processing child
// (ffmpeg by convention) that republishes one RTSP source as RTMP into the
// origin. It is pure process plumbing: it never inspects frames and never
// interprets child stdout/stderr as a liveness signal.
package driver

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelstream/broker/internal/apperror"
)

// Config controls how children are launched.
type Config struct {
	// BinPath is the external media tool invoked for every spawn, e.g. "ffmpeg".
	BinPath string
	// StopGrace bounds how long Stop waits after a polite signal before it
	// force-kills the child.
	StopGrace time.Duration
}

func defaultConfig() Config {
	return Config{BinPath: "ffmpeg", StopGrace: 3 * time.Second}
}

// Handle is an opaque running child. The registry stores one per Session
// and never inspects its fields directly.
type Handle struct {
	cmd       *exec.Cmd
	streamKey string

	mu      sync.Mutex
	stopped bool
	exited  bool
	waitErr error
}

// Exited reports whether the child has terminated, whether on its own or
// after Stop. The reaper uses this to sweep crashed/disconnected children
// even before the idle threshold elapses.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// Driver spawns and stops child transcoder processes.
type Driver struct {
	cfg    Config
	logger zerolog.Logger

	// command builds the *exec.Cmd for a spawn; overridden in tests so the
	// ffmpeg-shaped argument list doesn't have to be satisfied by a real
	// ffmpeg binary.
	command func(name string, args ...string) *exec.Cmd
}

func New(cfg Config, logger zerolog.Logger) *Driver {
	if cfg.BinPath == "" {
		cfg.BinPath = defaultConfig().BinPath
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultConfig().StopGrace
	}
	return &Driver{cfg: cfg, logger: logger, command: exec.Command}
}

// NewForTesting builds a Driver whose underlying command constructor is
// replaced by command, so callers outside this package (the registry's own
// tests, in particular) can exercise spawn/stop semantics without a real
// ffmpeg binary on PATH.
func NewForTesting(cfg Config, logger zerolog.Logger, command func(name string, args ...string) *exec.Cmd) *Driver {
	d := New(cfg, logger)
	d.command = command
	return d
}

// buildArgs constructs the ffmpeg-equivalent argument list for republishing
// rtspURL as FLV over RTMP to rtmpTarget without re-encoding.
func buildArgs(rtspURL, rtmpTarget string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-c", "copy",
		"-f", "flv",
		rtmpTarget,
	}
}

// Spawn launches the child for rtspURL, publishing under streamKey to
// rtmp://originHost:1935/live/<streamKey>. Equivalent to:
//
//	ffmpeg -rtsp_transport tcp -i <rtspURL> -c copy -f flv rtmp://<originHost>:1935/live/<streamKey>
func (d *Driver) Spawn(rtspURL, streamKey, originHost string) (*Handle, error) {
	rtmpTarget := fmt.Sprintf("rtmp://%s:1935/live/%s", originHost, streamKey)

	cmd := d.command(d.cfg.BinPath, buildArgs(rtspURL, rtmpTarget)...)

	if err := cmd.Start(); err != nil {
		return nil, apperror.Wrap(apperror.SpawnFailed, "failed to start transcoder child", err)
	}

	h := &Handle{cmd: cmd, streamKey: streamKey}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.waitErr = err
		h.mu.Unlock()
	}()

	d.logger.Info().
		Str("stream_key", streamKey).
		Str("rtsp_url", rtspURL).
		Str("rtmp_target", rtmpTarget).
		Msg("transcoder spawned")

	return h, nil
}

// Stop requests termination of the child: SIGTERM first, then SIGKILL if the
// child has not exited within StopGrace. Idempotent — safe to call more than
// once on the same handle, from the reaper and defensively from error paths.
func (d *Driver) Stop(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	alreadyExited := h.exited
	h.mu.Unlock()

	if alreadyExited || h.cmd.Process == nil {
		return
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			if h.Exited() {
				close(done)
				return
			}
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.StopGrace):
		_ = h.cmd.Process.Kill()
	}

	d.logger.Info().Str("stream_key", h.streamKey).Msg("transcoder stopped")
}
