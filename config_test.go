package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{
		bind:           "127.0.0.1",
		detectorScript: "https://cdn.example.com/js/affdex.js",
		emojis:         defaultEmojiEntries(),
		gameDuration:   16 * time.Second,
		leadIn:         2 * time.Second,
		port:           8080,
		roundTimeout:   8 * time.Second,
	}
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}

	return cfg
}

// parseArgs runs the command with validation in place of the server.
func parseArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	cfg := &Config{}
	cmd := newCmd(cfg)
	cmd.RunE = func(*cobra.Command, []string) error {
		return cfg.validate()
	}
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))

	return cfg, cmd.Execute()
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := parseArgs(t)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.port != 8080 || cfg.bind != "0.0.0.0" {
		t.Errorf("listen = %s:%d", cfg.bind, cfg.port)
	}
	if got := cfg.timings(); got != defaultTimings() {
		t.Errorf("timings = %+v, want %+v", got, defaultTimings())
	}
	if cfg.emojiSet.Len() != 12 {
		t.Errorf("emoji set has %d entries, want 12", cfg.emojiSet.Len())
	}
	if cfg.scheme() != "http" {
		t.Errorf("scheme = %s", cfg.scheme())
	}
}

func TestConfigFlags(t *testing.T) {
	cfg, err := parseArgs(t,
		"--round-timeout", "5s",
		"--game-duration", "30s",
		"--lead-in", "1s",
		"--emoji", "U+1F603,😏",
		"-p", "9000",
	)
	if err != nil {
		t.Fatal(err)
	}

	want := Timings{Round: 5 * time.Second, Game: 30 * time.Second, LeadIn: time.Second}
	if got := cfg.timings(); got != want {
		t.Errorf("timings = %+v, want %+v", got, want)
	}
	if cfg.port != 9000 {
		t.Errorf("port = %d", cfg.port)
	}
	if cfg.emojiSet.Len() != 2 || cfg.emojiSet.At(0) != 128515 || cfg.emojiSet.At(1) != 128527 {
		t.Errorf("emojis = %v", cfg.emojiSet.Codes())
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("MIMICME_ROUND_TIMEOUT", "3s")
	t.Setenv("MIMICME_PORT", "9100")

	cfg, err := parseArgs(t, "--port", "9200")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.roundTimeout != 3*time.Second {
		t.Errorf("round timeout = %s, want 3s", cfg.roundTimeout)
	}
	if cfg.port != 9200 {
		t.Errorf("port = %d, flag should win over env", cfg.port)
	}
}

func TestConfigEnvFile(t *testing.T) {
	t.Setenv("MIMICME_LEAD_IN", "")
	os.Unsetenv("MIMICME_LEAD_IN")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MIMICME_LEAD_IN=4s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	cmd := newCmd(cfg)
	cmd.RunE = func(*cobra.Command, []string) error { return cfg.validate() }
	cmd.SetArgs([]string{"--env-file", path})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if cfg.leadIn != 4*time.Second {
		t.Errorf("lead-in = %s, want 4s", cfg.leadIn)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  error
	}{
		{"zero round", []string{"--round-timeout", "0s"}, ErrInvalidDuration},
		{"negative game", []string{"--game-duration", "-1s"}, ErrInvalidDuration},
		{"bad emoji", []string{"--emoji", "nope"}, ErrInvalidEmoji},
		{"duplicate emoji", []string{"--emoji", "128515,U+1F603"}, ErrInvalidEmoji},
		{"port", []string{"--port", "0"}, nil},
		{"tls pair", []string{"--tls-cert", "cert.pem"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestConfigEmptyEmojiSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.emojis = nil

	if err := cfg.validate(); !errors.Is(err, ErrEmptyEmojiSet) {
		t.Fatalf("err = %v, want ErrEmptyEmojiSet", err)
	}
}
