package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

const validConfigYAML = `
server:
  port: 9090
srs:
  api_url: "http://origin:1985/api/v1/streams"
  playback_url_template: "http://origin:8080/live/{stream_name}.flv"
api_keys:
  - secret-key-1
streams:
  - name: "Camera 1"
    url: "rtsp://cam/stream"
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.SRS.APIURL != "http://origin:1985/api/v1/streams" {
		t.Errorf("Expected srs.api_url to round-trip, got %s", cfg.SRS.APIURL)
	}

	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0] != "secret-key-1" {
		t.Errorf("Expected one api key, got %v", cfg.APIKeys)
	}

	if len(cfg.Streams) != 1 || cfg.Streams[0].Name != "Camera 1" {
		t.Errorf("Expected configured stream Camera 1, got %v", cfg.Streams)
	}

	// Defaults should still apply for fields the YAML didn't set.
	if cfg.Reaper.Interval.Seconds() != 15 {
		t.Errorf("Expected default reaper interval of 15s, got %s", cfg.Reaper.Interval)
	}
	if cfg.Reaper.IdleThreshold.Seconds() != 60 {
		t.Errorf("Expected default idle threshold of 60s, got %s", cfg.Reaper.IdleThreshold)
	}
	if cfg.Transcoder.BinPath != "ffmpeg" {
		t.Errorf("Expected default transcoder bin_path of ffmpeg, got %s", cfg.Transcoder.BinPath)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	viper.Reset()
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}

func TestLoadRejectsMissingAPIURL(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
srs:
  playback_url_template: "http://origin:8080/live/{stream_name}.flv"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for missing srs.api_url")
	}
}

func TestLoadRejectsTemplateWithoutPlaceholder(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
srs:
  api_url: "http://origin:1985/api/v1/streams"
  playback_url_template: "http://origin:8080/live/fixed.flv"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for template missing {stream_name}")
	}
}

func TestLoadRejectsStreamMissingURL(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
srs:
  api_url: "http://origin:1985/api/v1/streams"
  playback_url_template: "http://origin:8080/live/{stream_name}.flv"
streams:
  - name: "Camera 1"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for stream with no url")
	}
}

func TestFindStream(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	s, ok := cfg.FindStream("Camera 1")
	if !ok || s.URL != "rtsp://cam/stream" {
		t.Errorf("Expected to find Camera 1 -> rtsp://cam/stream, got %v, %v", s, ok)
	}

	if _, ok := cfg.FindStream("Ghost"); ok {
		t.Error("Expected Ghost to not be found")
	}
}
