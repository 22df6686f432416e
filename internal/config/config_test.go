package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9876 {
		t.Fatalf("expected default port 9876, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected default engine mode mock, got %q", cfg.Engine.Mode)
	}
	if cfg.Engine.DefaultVoice != "am_onyx.4+bm_lewis.6" {
		t.Fatalf("unexpected default voice %q", cfg.Engine.DefaultVoice)
	}
	if cfg.Scheduler.Workers < 1 {
		t.Fatalf("expected at least one worker, got %d", cfg.Scheduler.Workers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIRIUS_SERVER_BIND", "0.0.0.0")
	t.Setenv("SIRIUS_SERVER_PORT", "9000")
	t.Setenv("SIRIUS_ENGINE_MODE", "exec")
	t.Setenv("SIRIUS_ENGINE_COMMAND", "kokoro-cli --stdin")
	t.Setenv("SIRIUS_ENGINE_LANGUAGES", "en-us, ja")
	t.Setenv("SIRIUS_MODEL", "/models/kokoro.onnx")
	t.Setenv("SIRIUS_SCHEDULER_WORKERS", "3")
	t.Setenv("SIRIUS_SCHEDULER_QUEUE_SIZE", "8")
	t.Setenv("SIRIUS_BUS_ENABLED", "true")
	t.Setenv("SIRIUS_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SIRIUS_EVENT_STORE_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Fatalf("expected server overrides, got %s:%d", cfg.Server.Bind, cfg.Server.Port)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "kokoro-cli --stdin" {
		t.Fatalf("expected engine overrides, got %+v", cfg.Engine)
	}
	if len(cfg.Engine.Languages) != 2 || cfg.Engine.Languages[1] != "ja" {
		t.Fatalf("expected language override, got %v", cfg.Engine.Languages)
	}
	if cfg.Engine.ModelPath != "/models/kokoro.onnx" {
		t.Fatalf("expected model path override, got %q", cfg.Engine.ModelPath)
	}
	if cfg.Scheduler.Workers != 3 || cfg.Scheduler.QueueSize != 8 {
		t.Fatalf("expected scheduler overrides, got %+v", cfg.Scheduler)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.EventStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention override, got %q", cfg.EventStore.RetentionMode)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("SIRIUS_ENGINE_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without a command")
	}
}

func TestValidateRejectsBadSpeedBounds(t *testing.T) {
	t.Setenv("SIRIUS_ENGINE_MIN_SPEED", "2.0")
	t.Setenv("SIRIUS_ENGINE_MAX_SPEED", "0.5")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for inverted speed bounds")
	}
}
