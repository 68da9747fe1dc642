package driver

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelstream/broker/internal/apperror"
)

// sleeper replaces the ffmpeg invocation with a plain "sleep", so tests
// exercise real process spawn/signal/wait semantics without depending on
// ffmpeg being installed or on the ffmpeg-shaped argument list.
func sleeper(seconds string) func(name string, args ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		return exec.Command("sleep", seconds)
	}
}

func newTestDriver(command func(name string, args ...string) *exec.Cmd) *Driver {
	d := New(Config{StopGrace: 200 * time.Millisecond}, zerolog.Nop())
	d.command = command
	return d
}

func TestSpawnStartsChild(t *testing.T) {
	d := newTestDriver(sleeper("5"))

	h, err := d.Spawn("rtsp://cam/stream", "camera_1", "origin.example.com")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if h.Exited() {
		t.Fatal("expected child to still be running immediately after spawn")
	}

	d.Stop(context.Background(), h)
}

func TestStopTerminatesChild(t *testing.T) {
	d := newTestDriver(sleeper("30"))

	h, err := d.Spawn("rtsp://cam/stream", "camera_1", "origin.example.com")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	d.Stop(context.Background(), h)

	deadline := time.Now().Add(1 * time.Second)
	for !h.Exited() {
		if time.Now().After(deadline) {
			t.Fatal("child did not exit after Stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d := newTestDriver(sleeper("5"))

	h, err := d.Spawn("rtsp://cam/stream", "camera_1", "origin.example.com")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	d.Stop(context.Background(), h)
	d.Stop(context.Background(), h) // must not panic or block
}

func TestStopOnAlreadyExitedChild(t *testing.T) {
	d := newTestDriver(sleeper("0"))

	h, err := d.Spawn("rtsp://cam/stream", "camera_1", "origin.example.com")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	deadline := time.Now().Add(1 * time.Second)
	for !h.Exited() {
		if time.Now().After(deadline) {
			t.Fatal("child never reported exited")
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.Stop(context.Background(), h) // must be a no-op, not error
}

func TestSpawnFailureReturnsSpawnFailedKind(t *testing.T) {
	d := New(Config{BinPath: "/no/such/binary-ffmpeg"}, zerolog.Nop())

	_, err := d.Spawn("rtsp://cam/stream", "camera_1", "origin.example.com")
	if err == nil {
		t.Fatal("expected spawn of a nonexistent binary to fail")
	}
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.SpawnFailed {
		t.Errorf("expected an apperror of kind %q, got %v", apperror.SpawnFailed, err)
	}
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs("rtsp://cam/stream", "rtmp://origin:1935/live/camera_1")
	want := []string{"-rtsp_transport", "tcp", "-i", "rtsp://cam/stream", "-c", "copy", "-f", "flv", "rtmp://origin:1935/live/camera_1"}

	if len(args) != len(want) {
		t.Fatalf("got %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, args[i], want[i])
		}
	}
}
