package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"min=0,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Predictor struct {
		Alpha         float64 `yaml:"alpha" default:"0.15" validate:"gt=0,lte=1"`
		Threshold     float64 `yaml:"threshold" default:"40" validate:"gte=0"`
		ExecutionMode string  `yaml:"execution_mode" default:"cpu" validate:"oneof=cpu accelerated gpu"`
	} `yaml:"predictor"`
	Accelerator struct {
		Backend     string `yaml:"backend" default:"pool" validate:"oneof=pool none"`
		Workers     int    `yaml:"workers" validate:"gte=0"`
		MemoryBytes int64  `yaml:"memory_bytes" validate:"gte=0"`
	} `yaml:"accelerator"`
	Ingest struct {
		Source string `yaml:"source" default:"udp" validate:"oneof=udp websocket kafka"`
		UDP    struct {
			Host       string `yaml:"host" default:"0.0.0.0"`
			Port       int    `yaml:"port" default:"9000" validate:"min=1,max=65535"`
			ReadBuffer int    `yaml:"read_buffer" default:"4194304" validate:"gte=0"`
		} `yaml:"udp"`
		WebSocket struct {
			URL            string        `yaml:"url"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"websocket"`
	} `yaml:"ingest"`
	Sink struct {
		Backend    string `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse both"`
		BufferSize int    `yaml:"buffer_size" default:"4096" validate:"gt=0"`
		EmitHold   bool   `yaml:"emit_hold"`
	} `yaml:"sink"`
	Kafka struct {
		Brokers          []string `yaml:"brokers"`
		Topic            string   `yaml:"topic"`
		TicksTopic       string   `yaml:"ticks_topic" default:"ticks"`
		SignalsTopic     string   `yaml:"signals_topic" default:"ofi.signals"`
		DiagnosticsTopic string   `yaml:"diagnostics_topic"`
		RequiredAcks     int      `yaml:"required_acks" default:"1"`
		Compression      string   `yaml:"compression" default:"snappy"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"5ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"ofi-engine"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr" default:"localhost:6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"1m"`
	} `yaml:"redis"`
	Batch struct {
		MaxElements  int           `yaml:"max_elements" default:"4000000" validate:"gt=0"`
		QueueWorkers int           `yaml:"queue_workers" default:"2" validate:"gte=0"`
		ResultTTL    time.Duration `yaml:"result_ttl" default:"1h"`
		RetryLimit   int           `yaml:"retry_limit" default:"1" validate:"gte=0"`
		RateLimit    int           `yaml:"rate_limit" default:"20" validate:"gte=0"`
	} `yaml:"batch"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults for missing keys and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overlays environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("OFI_ALPHA"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OFI_ALPHA: %w", err)
		}
		c.Predictor.Alpha = f
	}
	if v := getenv("OFI_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OFI_THRESHOLD: %w", err)
		}
		c.Predictor.Threshold = f
	}
	if v := getenv("OFI_EXECUTION_MODE"); v != "" {
		c.Predictor.ExecutionMode = strings.ToLower(v)
	}
	if v := getenv("OFI_SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := getenv("OFI_UDP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OFI_UDP_PORT: %w", err)
		}
		c.Ingest.UDP.Port = p
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	return nil
}

// Validate checks field rules and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Ingest.Source == "websocket" && c.Ingest.WebSocket.URL == "" {
		return fmt.Errorf("ingest.websocket.url is required for websocket source")
	}
	if c.Ingest.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for kafka source")
	}
	if c.UsesKafkaSink() && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for sink.backend %q", c.Sink.Backend)
	}
	return nil
}

// UsesKafkaSink reports whether decisions are published to Kafka.
func (c *Config) UsesKafkaSink() bool {
	return c.Sink.Backend == "kafka" || c.Sink.Backend == "both"
}

// UsesClickHouseSink reports whether decisions are written to ClickHouse.
func (c *Config) UsesClickHouseSink() bool {
	return c.Sink.Backend == "clickhouse" || c.Sink.Backend == "both"
}

// SignalsTopic returns the decision topic; KAFKA_TOPIC overrides it.
func (c *Config) SignalsTopic() string {
	if c.Kafka.Topic != "" {
		return c.Kafka.Topic
	}
	return c.Kafka.SignalsTopic
}
