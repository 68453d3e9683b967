package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type MediaConfig struct {
	// WorkerBin is the path to the mediasoup worker binary.
	WorkerBin string `mapstructure:"worker_bin"`
	// NumWorkers <= 0 means min(2, NumCPU).
	NumWorkers  int    `mapstructure:"num_workers"`
	ListenIP    string `mapstructure:"listen_ip"`
	AnnouncedIP string `mapstructure:"announced_ip"`
	// OpTimeout bounds every call into the routing engine.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type BroadcastConfig struct {
	FFmpegBin string `mapstructure:"ffmpeg_bin"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	// DirectoryURL is the base URL of the session lifecycle service.
	DirectoryURL string `mapstructure:"directory_url"`

	Media     MediaConfig     `mapstructure:"media"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("directory_url", "http://127.0.0.1:8081")
	v.SetDefault("media.worker_bin", "mediasoup-worker")
	v.SetDefault("media.num_workers", 0)
	v.SetDefault("media.listen_ip", "0.0.0.0")
	v.SetDefault("media.announced_ip", "")
	v.SetDefault("media.op_timeout", "15s")
	v.SetDefault("broadcast.ffmpeg_bin", "ffmpeg")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Workers: %d\n", cfg.Mode, cfg.Port, cfg.Media.NumWorkers)
	return &cfg, nil
}
