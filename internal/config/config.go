package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// RTC holds the media server endpoint and the signing credentials.
type RTC struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type Token struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

// Client configures the front-end session.
type Client struct {
	TokenEndpoint        string        `mapstructure:"token_endpoint"`
	Identity             string        `mapstructure:"identity"`
	Room                 string        `mapstructure:"room"`
	Camera               bool          `mapstructure:"camera"`
	Mic                  bool          `mapstructure:"mic"`
	CameraFile           string        `mapstructure:"camera_file"`
	MicFile              string        `mapstructure:"mic_file"`
	LoopMedia            bool          `mapstructure:"loop_media"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	EnableGrace          time.Duration `mapstructure:"enable_grace"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ICEServers           []string      `mapstructure:"ice_servers"`
	LogFile              string        `mapstructure:"log_file"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	RTC    RTC    `mapstructure:"rtc"`
	Token  Token  `mapstructure:"token"`
	Client Client `mapstructure:"client"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("rtc.url", "")
	v.SetDefault("rtc.api_key", "")
	v.SetDefault("rtc.api_secret", "")
	v.SetDefault("rtc.token_ttl", "24h")

	v.SetDefault("token.rate_limit", 10)
	v.SetDefault("token.rate_interval", "1m")

	v.SetDefault("client.token_endpoint", "http://localhost:8080/api/token")
	v.SetDefault("client.identity", "")
	v.SetDefault("client.room", "style-consultation")
	v.SetDefault("client.camera", true)
	v.SetDefault("client.mic", true)
	v.SetDefault("client.camera_file", "")
	v.SetDefault("client.mic_file", "")
	v.SetDefault("client.loop_media", true)
	v.SetDefault("client.reconnect_delay", "2s")
	v.SetDefault("client.max_reconnect_attempts", 3)
	v.SetDefault("client.enable_grace", "1s")
	v.SetDefault("client.connect_timeout", "15s")
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.log_file", "playground.log")
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by existing deployments of the media server.
	for key, env := range map[string]string{
		"rtc.url":        "LIVEKIT_URL",
		"rtc.api_key":    "LIVEKIT_API_KEY",
		"rtc.api_secret": "LIVEKIT_API_SECRET",
	} {
		if err := v.BindEnv(key, "VOICE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// Load reads config/config.<CONFIG_ENV>.yaml, defaults and environment overrides.
// A missing file is not an error.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Bool("rtc_keys", cfg.RTC.APIKey != "" && cfg.RTC.APISecret != "").
		Msg("config ready")
	return &cfg, nil
}
