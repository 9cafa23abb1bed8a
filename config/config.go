package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrNoModels           = errors.New("at least one chat model is required")
	ErrInvalidTemperature = errors.New("model temperature must be between 0 and 2")
)

type Chat struct {
	APIKey           string   `yaml:"api_key" env:"OPENAI_API_KEY" env-required:"true"`
	ProxyURL         string   `yaml:"proxy_url" env:"PROXY_URL" env-required:"true"`
	PrimaryModel     string   `yaml:"primary_model" env:"MODEL_GPT4" env-required:"true"`
	FallbackModels   []string `yaml:"fallback_models" env:"MODEL_FALLBACK" env-separator:","`
	ModelTemperature float32  `yaml:"model_temperature" env:"MODEL_TEMPERATURE" env-default:"0.7"`
	MaxContextTokens int      `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS" env-default:"3500"`
}

// Models returns the dispatch candidates in the order they are tried.
func (c Chat) Models() []string {
	seen := make(map[string]struct{}, len(c.FallbackModels)+1)
	models := make([]string, 0, len(c.FallbackModels)+1)
	for _, m := range append([]string{c.PrimaryModel}, c.FallbackModels...) {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		models = append(models, m)
	}
	return models
}

type Backend struct {
	URL          string `yaml:"url" env:"BACKEND_URL_PROD" env-required:"true"`
	DefaultVoice string `yaml:"default_voice" env:"TTS_VOICE" env-default:"alloy"`
}

type Auth struct {
	SupabaseURL     string `yaml:"supabase_url" env:"SUPABASE_URL" env-required:"true"`
	SupabaseAnonKey string `yaml:"supabase_anon_key" env:"SUPABASE_ANON_KEY" env-required:"true"`
	JWTSecret       string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

type Search struct {
	BaseURL    string `yaml:"base_url" env:"SEARCH_BASE_URL" env-default:"https://duckduckgo.com"`
	Locale     string `yaml:"locale" env:"SEARCH_LOCALE" env-default:"ru-ru"`
	MaxResults int    `yaml:"max_results" env:"SEARCH_MAX_RESULTS" env-default:"3"`
}

type Recorder struct {
	Enabled      bool          `yaml:"enabled" env:"RECORDER_ENABLED"`
	InputFormat  string        `yaml:"input_format" env:"RECORDER_INPUT_FORMAT" env-default:"alsa"`
	InputDevice  string        `yaml:"input_device" env:"RECORDER_INPUT_DEVICE" env-default:"default"`
	Dir          string        `yaml:"dir" env:"RECORDER_DIR"`
	TickInterval time.Duration `yaml:"tick_interval" env:"RECORDER_TICK_INTERVAL" env-default:"300ms"`
}

type Storage struct {
	Endpoint        string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKeyID     string        `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	UseSSL          bool          `yaml:"use_ssl" env:"S3_USE_SSL"`
	BucketName      string        `yaml:"bucket_name" env:"S3_BUCKET" env-default:"lingro-recordings"`
	PresignExpiry   time.Duration `yaml:"presign_expiry" env:"S3_PRESIGN_EXPIRY" env-default:"24h"`
}

func (s Storage) Enabled() bool {
	return s.Endpoint != ""
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
}

type HTTP struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
}

type Telegram struct {
	TelegramAPIToken  string  `yaml:"api_token" env:"TELEGRAM_APITOKEN"`
	AllowedTelegramID []int64 `yaml:"allowed_telegram_id" env:"ALLOWED_TELEGRAM_ID" env-separator:","`
}

type Session struct {
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
	Locale      string        `yaml:"locale" env:"SESSION_LOCALE" env-default:"ru"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Config struct {
	Chat     Chat     `yaml:"chat"`
	Backend  Backend  `yaml:"backend"`
	Auth     Auth     `yaml:"auth"`
	Search   Search   `yaml:"search"`
	Recorder Recorder `yaml:"recorder"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	HTTP     HTTP     `yaml:"http"`
	Telegram Telegram `yaml:"telegram"`
	Session  Session  `yaml:"session"`
	Log      Log      `yaml:"log"`
}

// LoadConfig reads the optional yaml file at cfgPath and then the environment.
// Environment values win over the file.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Chat.Models()) == 0 {
		return ErrNoModels
	}
	if c.Chat.ModelTemperature < 0 || c.Chat.ModelTemperature > 2 {
		return ErrInvalidTemperature
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Storage.Enabled() && (c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "") {
		return fmt.Errorf("storage credentials are required when endpoint %s is set", c.Storage.Endpoint)
	}
	return nil
}
