package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Bind            string `yaml:"bind"`
	Port            int    `yaml:"port"`
	WSPath          string `yaml:"ws_path"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`
	WriteTimeoutMS  int    `yaml:"write_timeout_ms"`
}

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type EngineConfig struct {
	Mode         string   `yaml:"mode"` // mock, exec
	Command      string   `yaml:"command"`
	ModelPath    string   `yaml:"model_path"`
	VoicesPath   string   `yaml:"voices_path"`
	SampleRate   int      `yaml:"sample_rate"`
	Channels     int      `yaml:"channels"`
	Voices       []string `yaml:"voices"`
	Languages    []string `yaml:"languages"`
	MaxTextLen   int      `yaml:"max_text_len"`
	MinSpeed     float64  `yaml:"min_speed"`
	MaxSpeed     float64  `yaml:"max_speed"`
	DefaultVoice string   `yaml:"default_voice"`
	DefaultLang  string   `yaml:"default_lang"`
	DefaultSpeed float64  `yaml:"default_speed"`
}

type SchedulerConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	QueueTimeoutMS int `yaml:"queue_timeout_ms"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Engine      EngineConfig     `yaml:"engine"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

func Default() Config {
	return Config{
		ServiceName: "siriusd",
		Environment: "development",
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            9876,
			WSPath:          "/",
			MaxMessageBytes: 1 << 20,
			WriteTimeoutMS:  10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Engine: EngineConfig{
			Mode:       "mock",
			ModelPath:  "checkpoints/kokoro-v1.0.onnx",
			VoicesPath: "data/voices-v1.0.bin",
			SampleRate: 24000,
			Channels:   1,
			Voices: []string{
				"af_heart", "af_bella", "af_nicole",
				"am_adam", "am_michael", "am_onyx",
				"bf_emma", "bf_isabella",
				"bm_daniel", "bm_george", "bm_lewis",
			},
			Languages:    []string{"en-us", "en-gb", "es", "fr-fr", "hi", "it", "ja", "pt-br", "zh"},
			MaxTextLen:   4096,
			MinSpeed:     0.5,
			MaxSpeed:     2.0,
			DefaultVoice: "am_onyx.4+bm_lewis.6",
			DefaultLang:  "en-us",
			DefaultSpeed: 0.99,
		},
		Scheduler: SchedulerConfig{
			Workers:        runtime.NumCPU(),
			QueueSize:      16,
			QueueTimeoutMS: 10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/sirius-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SIRIUS_SERVICE_NAME")
	overrideString(&cfg.Environment, "SIRIUS_ENVIRONMENT")
	overrideString(&cfg.Server.Bind, "SIRIUS_SERVER_BIND")
	overrideInt(&cfg.Server.Port, "SIRIUS_SERVER_PORT")
	overrideString(&cfg.Server.WSPath, "SIRIUS_SERVER_WS_PATH")
	overrideInt(&cfg.Server.MaxMessageBytes, "SIRIUS_SERVER_MAX_MESSAGE_BYTES")
	overrideInt(&cfg.Server.WriteTimeoutMS, "SIRIUS_SERVER_WRITE_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "SIRIUS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SIRIUS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SIRIUS_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Engine.Mode, "SIRIUS_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SIRIUS_ENGINE_COMMAND")
	overrideString(&cfg.Engine.ModelPath, "SIRIUS_MODEL")
	overrideString(&cfg.Engine.VoicesPath, "SIRIUS_VOICES")
	overrideInt(&cfg.Engine.SampleRate, "SIRIUS_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "SIRIUS_ENGINE_CHANNELS")
	overrideStringSlice(&cfg.Engine.Voices, "SIRIUS_ENGINE_VOICES")
	overrideStringSlice(&cfg.Engine.Languages, "SIRIUS_ENGINE_LANGUAGES")
	overrideInt(&cfg.Engine.MaxTextLen, "SIRIUS_ENGINE_MAX_TEXT_LEN")
	overrideFloat(&cfg.Engine.MinSpeed, "SIRIUS_ENGINE_MIN_SPEED")
	overrideFloat(&cfg.Engine.MaxSpeed, "SIRIUS_ENGINE_MAX_SPEED")
	overrideString(&cfg.Engine.DefaultVoice, "SIRIUS_ENGINE_DEFAULT_VOICE")
	overrideString(&cfg.Engine.DefaultLang, "SIRIUS_ENGINE_DEFAULT_LANG")
	overrideFloat(&cfg.Engine.DefaultSpeed, "SIRIUS_ENGINE_DEFAULT_SPEED")
	overrideInt(&cfg.Scheduler.Workers, "SIRIUS_SCHEDULER_WORKERS")
	overrideInt(&cfg.Scheduler.QueueSize, "SIRIUS_SCHEDULER_QUEUE_SIZE")
	overrideInt(&cfg.Scheduler.QueueTimeoutMS, "SIRIUS_SCHEDULER_QUEUE_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Enabled, "SIRIUS_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "SIRIUS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SIRIUS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SIRIUS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SIRIUS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SIRIUS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SIRIUS_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "SIRIUS_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SIRIUS_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SIRIUS_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "SIRIUS_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SIRIUS_EVENT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		return errors.New("server.ws_path must start with /")
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		return errors.New("server.max_message_bytes must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	if len(cfg.Engine.Voices) == 0 {
		return errors.New("engine.voices must not be empty")
	}
	if len(cfg.Engine.Languages) == 0 {
		return errors.New("engine.languages must not be empty")
	}
	if cfg.Engine.MaxTextLen <= 0 {
		return errors.New("engine.max_text_len must be positive")
	}
	if cfg.Engine.MinSpeed <= 0 || cfg.Engine.MaxSpeed <= cfg.Engine.MinSpeed {
		return errors.New("engine speed bounds must satisfy 0 < min_speed < max_speed")
	}
	if cfg.Engine.DefaultSpeed < cfg.Engine.MinSpeed || cfg.Engine.DefaultSpeed > cfg.Engine.MaxSpeed {
		return errors.New("engine.default_speed must fall within the speed bounds")
	}
	if cfg.Scheduler.Workers <= 0 {
		return errors.New("scheduler.workers must be >= 1")
	}
	if cfg.Scheduler.QueueSize <= 0 {
		return errors.New("scheduler.queue_size must be >= 1")
	}
	if cfg.Scheduler.QueueTimeoutMS < 0 {
		return errors.New("scheduler.queue_timeout_ms must be >= 0")
	}
	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
