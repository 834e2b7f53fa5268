package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. EUFY_BRIDGE_HUB_URL.
const EnvPrefix = "EUFY_BRIDGE"

// Settings is the typed view of the configuration.
type Settings struct {
	Hub struct {
		URL            string        `mapstructure:"url"`
		SchemaVersion  int           `mapstructure:"schema_version"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	} `mapstructure:"hub"`
	Recorder struct {
		Dir           string        `mapstructure:"dir"`
		Prefix        string        `mapstructure:"prefix"`
		Container     string        `mapstructure:"container"`
		FFmpeg        string        `mapstructure:"ffmpeg"`
		RetryInterval time.Duration `mapstructure:"retry_interval"`
		MaxRetries    int           `mapstructure:"max_retries"`
		MaxDuration   time.Duration `mapstructure:"max_duration"`
		CloseTimeout  time.Duration `mapstructure:"close_timeout"`
	} `mapstructure:"recorder"`
	Catalog struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"catalog"`
	Notify struct {
		WebhookURL string        `mapstructure:"webhook_url"`
		Cooldown   time.Duration `mapstructure:"cooldown"`
	} `mapstructure:"notify"`
	Metrics struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"metrics"`
	LogLevel string `mapstructure:"log_level"`
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".eufy-bridge" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".eufy-bridge")
	}

	SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Printf("Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

// SetDefaults registers every key so env overrides resolve on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("hub.url", "ws://127.0.0.1:3000")
	v.SetDefault("hub.schema_version", 21)
	v.SetDefault("hub.reconnect_delay", 5*time.Second)

	v.SetDefault("recorder.dir", "~/Videos/Eufy_Records")
	v.SetDefault("recorder.prefix", "eufy")
	v.SetDefault("recorder.container", "mp4")
	v.SetDefault("recorder.ffmpeg", "ffmpeg")
	v.SetDefault("recorder.retry_interval", 6*time.Second)
	v.SetDefault("recorder.max_retries", 3)
	v.SetDefault("recorder.max_duration", 30*time.Second)
	v.SetDefault("recorder.close_timeout", 2*time.Second)

	v.SetDefault("catalog.path", "~/.eufy-bridge/recordings.db")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.cooldown", time.Minute)
	v.SetDefault("metrics.port", "9101")
	v.SetDefault("log_level", "INFO")
}

// Load decodes and validates v. The records directory is created.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var err error
	if s.Recorder.Dir, err = expandHome(s.Recorder.Dir); err != nil {
		return nil, err
	}
	if s.Catalog.Path, err = expandHome(s.Catalog.Path); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Recorder.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	return &s, nil
}

func (s *Settings) validate() error {
	var errs []error
	if strings.TrimSpace(s.Hub.URL) == "" {
		errs = append(errs, errors.New("hub.url is required"))
	}
	for key, d := range map[string]time.Duration{
		"hub.reconnect_delay":     s.Hub.ReconnectDelay,
		"recorder.retry_interval": s.Recorder.RetryInterval,
		"recorder.max_duration":   s.Recorder.MaxDuration,
		"recorder.close_timeout":  s.Recorder.CloseTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if s.Recorder.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("recorder.max_retries must be non-negative, got %d", s.Recorder.MaxRetries))
	}
	if s.Recorder.Prefix == "" {
		errs = append(errs, errors.New("recorder.prefix is required"))
	}
	if s.Recorder.Container == "" {
		errs = append(errs, errors.New("recorder.container is required"))
	}
	return errors.Join(errs...)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
