package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"parkgate/internal/domain/gate"
	"parkgate/internal/pricing"
)

var ErrInvalid = errors.New("invalid config")

type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CameraConfig struct {
	ID             string         `mapstructure:"id"`
	StreamURL      string         `mapstructure:"stream_url"`
	Direction      gate.Direction `mapstructure:"direction"`
	BarrierID      string         `mapstructure:"barrier_id"`
	SampleInterval time.Duration  `mapstructure:"sample_interval"`
	QueueSize      int            `mapstructure:"queue_size"`
}

type RecognizerConfig struct {
	Accelerated bool   `mapstructure:"accelerated"`
	DetectModel string `mapstructure:"detect_model"`
	OCRModel    string `mapstructure:"ocr_model"`

	Language      string `mapstructure:"language"`
	PageSegMode   int    `mapstructure:"page_seg_mode"`
	CharWhitelist string `mapstructure:"char_whitelist"`

	PlatePattern   string `mapstructure:"plate_pattern"`
	MinPlateLength int    `mapstructure:"min_plate_length"`
	MaxPlateLength int    `mapstructure:"max_plate_length"`

	ConfidenceThreshold     float64 `mapstructure:"confidence_threshold"`
	CharConfidenceThreshold float64 `mapstructure:"char_confidence_threshold"`

	MaxImageWidth int           `mapstructure:"max_image_width"`
	BatchSize     int           `mapstructure:"batch_size"`
	FrameTimeout  time.Duration `mapstructure:"frame_timeout"`

	RetainImages bool   `mapstructure:"retain_images"`
	RetentionDir string `mapstructure:"retention_dir"`
}

type AggregatorConfig struct {
	PassTimeout time.Duration `mapstructure:"pass_timeout"`
	MaxFrames   int           `mapstructure:"max_frames"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type BarrierConfig struct {
	ID               string        `mapstructure:"id"`
	Driver           string        `mapstructure:"driver"`
	OpenTime         time.Duration `mapstructure:"open_time"`
	ActuationTimeout time.Duration `mapstructure:"actuation_timeout"`
}

type PaymentConfig struct {
	TerminalURL string        `mapstructure:"terminal_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Cameras    []CameraConfig   `mapstructure:"cameras"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Barriers   []BarrierConfig  `mapstructure:"barriers"`
	Pricing    pricing.Config   `mapstructure:"pricing"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

// Load reads the YAML config file with PARKGATE_* environment overrides and
// validates it. Configuration errors are fatal at startup and nowhere else.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PARKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalDecodeHook(),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults covers per-camera settings viper defaults cannot reach inside
// a list.
func (c *Config) applyDefaults() {
	for i := range c.Cameras {
		if c.Cameras[i].SampleInterval <= 0 {
			c.Cameras[i].SampleInterval = 200 * time.Millisecond
		}
		if c.Cameras[i].QueueSize <= 0 {
			c.Cameras[i].QueueSize = 16
		}
	}
}

// decimalDecodeHook lets money amounts appear as plain numbers or strings in
// the config file.
func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(_, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch val := data.(type) {
		case float64:
			return decimal.NewFromFloat(val), nil
		case int:
			return decimal.NewFromInt(int64(val)), nil
		case int64:
			return decimal.NewFromInt(val), nil
		case string:
			return decimal.NewFromString(val)
		default:
			return data, nil
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("recognizer.language", "eng")
	v.SetDefault("recognizer.page_seg_mode", 7) // single text line
	v.SetDefault("recognizer.char_whitelist", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	v.SetDefault("recognizer.min_plate_length", 4)
	v.SetDefault("recognizer.max_plate_length", 10)
	v.SetDefault("recognizer.confidence_threshold", 0.7)
	v.SetDefault("recognizer.char_confidence_threshold", 0.6)
	v.SetDefault("recognizer.batch_size", 2)
	v.SetDefault("recognizer.frame_timeout", "2s")

	v.SetDefault("aggregator.pass_timeout", "3s")
	v.SetDefault("aggregator.max_frames", 10)
	v.SetDefault("aggregator.cooldown", "30s")

	v.SetDefault("payment.timeout", "10s")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("pricing.mode", "hourly")
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required", ErrInvalid)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret is required", ErrInvalid)
	}
	if len(c.Cameras) == 0 {
		return fmt.Errorf("%w: at least one camera is required", ErrInvalid)
	}

	barriers := make(map[string]bool, len(c.Barriers))
	for i, b := range c.Barriers {
		if b.ID == "" {
			return fmt.Errorf("%w: barriers[%d].id is required", ErrInvalid, i)
		}
		if barriers[b.ID] {
			return fmt.Errorf("%w: duplicate barrier id %q", ErrInvalid, b.ID)
		}
		barriers[b.ID] = true
		if b.OpenTime <= 0 {
			return fmt.Errorf("%w: barrier %q needs a positive open_time", ErrInvalid, b.ID)
		}
		if b.ActuationTimeout <= 0 {
			return fmt.Errorf("%w: barrier %q needs a positive actuation_timeout", ErrInvalid, b.ID)
		}
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("%w: cameras[%d].id is required", ErrInvalid, i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("%w: duplicate camera id %q", ErrInvalid, cam.ID)
		}
		seen[cam.ID] = true
		if cam.StreamURL == "" {
			return fmt.Errorf("%w: camera %q needs a stream_url", ErrInvalid, cam.ID)
		}
		if cam.Direction != gate.DirectionEntry && cam.Direction != gate.DirectionExit {
			return fmt.Errorf("%w: camera %q direction must be entry or exit", ErrInvalid, cam.ID)
		}
		if cam.BarrierID != "" && !barriers[cam.BarrierID] {
			return fmt.Errorf("%w: camera %q references unknown barrier %q", ErrInvalid, cam.ID, cam.BarrierID)
		}
	}

	r := c.Recognizer
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: recognizer.confidence_threshold must be in [0,1]", ErrInvalid)
	}
	if r.CharConfidenceThreshold < 0 || r.CharConfidenceThreshold > 1 {
		return fmt.Errorf("%w: recognizer.char_confidence_threshold must be in [0,1]", ErrInvalid)
	}
	if r.MinPlateLength <= 0 || r.MaxPlateLength < r.MinPlateLength {
		return fmt.Errorf("%w: recognizer plate length bounds are inconsistent", ErrInvalid)
	}
	if r.Accelerated && (r.DetectModel == "" || r.OCRModel == "") {
		return fmt.Errorf("%w: accelerated recognizer needs detect_model and ocr_model", ErrInvalid)
	}
	if r.RetainImages && r.RetentionDir == "" {
		return fmt.Errorf("%w: recognizer.retention_dir is required when retain_images is set", ErrInvalid)
	}

	if c.Aggregator.PassTimeout <= 0 {
		return fmt.Errorf("%w: aggregator.pass_timeout must be positive", ErrInvalid)
	}

	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	return nil
}
