package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Logger   LoggerConfig   `yaml:"logger"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Tracking TrackingConfig `yaml:"tracking"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for ingest authentication (optional, if empty, auth is disabled)
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig persistence retry queue configuration
type QueueConfig struct {
	Concurrency  int `yaml:"concurrency"`   // queue processing concurrency
	MaxRetry     int `yaml:"max_retry"`     // maximum retry count per write
	AlertAfter   int `yaml:"alert_after"`   // consecutive failures before a critical system_status event
	WriteTimeout int `yaml:"write_timeout"` // per-write timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig daily index-period timeline
type ScheduleConfig struct {
	Timezone string         `yaml:"timezone"` // IANA name, defaults to Local
	Periods  []PeriodConfig `yaml:"periods"`  // ordered, typically 11 per day
}

// PeriodConfig one scheduled index period
type PeriodConfig struct {
	IndexNumber int    `yaml:"index_number"`
	Start       string `yaml:"start"` // HH:MM:SS
	End         string `yaml:"end"`   // HH:MM:SS
	BreakStart  string `yaml:"break_start,omitempty"`
	BreakEnd    string `yaml:"break_end,omitempty"`
}

// TrackingConfig session/zone tracking thresholds
type TrackingConfig struct {
	Lanes             int     `yaml:"lanes"`                // ingest lanes (parallelism across tracks)
	MotionThreshold   float64 `yaml:"motion_threshold"`     // motion_score >= threshold counts as active
	MaxSampleGap      int     `yaml:"max_sample_gap"`       // per-sample accumulation clamp (seconds)
	StaleTimeout      int     `yaml:"stale_timeout"`        // no sample for this long closes the session (seconds)
	QualityWeight     float64 `yaml:"quality_weight"`       // productivity formula weight, clamped to (0,1]
	OutputUnitsPerMin float64 `yaml:"output_units_per_min"` // estimated output rate for output/hour index
}

// AnomalyConfig anomaly detection thresholds
type AnomalyConfig struct {
	EmptyGraceSeconds  int     `yaml:"empty_grace_seconds"`  // sustained-empty grace before alerting
	IdleRatioThreshold float64 `yaml:"idle_ratio_threshold"` // excessive-idle trigger, value in (0,1)
	IdleSustainSeconds int     `yaml:"idle_sustain_seconds"` // idle ratio must hold this long
	TickInterval       int     `yaml:"tick_interval"`        // periodic evaluation interval (seconds)
}

// RealtimeConfig realtime publisher configuration
type RealtimeConfig struct {
	SubscriberQueueSize int `yaml:"subscriber_queue_size"` // bounded per-subscriber queue, default 100
	SnapshotInterval    int `yaml:"snapshot_interval"`     // metrics_snapshot emit interval (seconds)
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	GlobalConfig = &cfg
	return nil
}

// ApplyDefaults fills unset fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.Tracking.Lanes <= 0 {
		c.Tracking.Lanes = 8
	}
	if c.Tracking.MaxSampleGap <= 0 {
		c.Tracking.MaxSampleGap = 15
	}
	if c.Tracking.StaleTimeout <= 0 {
		c.Tracking.StaleTimeout = 30
	}
	if c.Tracking.QualityWeight <= 0 || c.Tracking.QualityWeight > 1 {
		c.Tracking.QualityWeight = 1.0
	}
	if c.Tracking.MotionThreshold <= 0 {
		c.Tracking.MotionThreshold = 0.3
	}
	if c.Tracking.OutputUnitsPerMin <= 0 {
		c.Tracking.OutputUnitsPerMin = 1.0
	}
	if c.Anomaly.EmptyGraceSeconds <= 0 {
		c.Anomaly.EmptyGraceSeconds = 60
	}
	if c.Anomaly.IdleRatioThreshold <= 0 {
		c.Anomaly.IdleRatioThreshold = 0.6
	}
	if c.Anomaly.IdleSustainSeconds <= 0 {
		c.Anomaly.IdleSustainSeconds = 120
	}
	if c.Anomaly.TickInterval <= 0 {
		c.Anomaly.TickInterval = 10
	}
	if c.Realtime.SubscriberQueueSize <= 0 {
		c.Realtime.SubscriberQueueSize = 100
	}
	if c.Realtime.SnapshotInterval <= 0 {
		c.Realtime.SnapshotInterval = 30
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 4
	}
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 10
	}
	if c.Queue.AlertAfter <= 0 {
		c.Queue.AlertAfter = 5
	}
	if c.Queue.WriteTimeout <= 0 {
		c.Queue.WriteTimeout = 10
	}
}
