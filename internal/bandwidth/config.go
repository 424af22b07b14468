package bandwidth

import "time"

type Config struct {
	Speed      *SpeedProviderConfig `yaml:"speed" validate:"required"`
	Dispatcher *DispatcherConfig    `yaml:"dispatcher" validate:"required"`
}

func (c Config) Default() *Config {
	return &Config{
		Speed:      SpeedProviderConfig{}.Default(),
		Dispatcher: DispatcherConfig{}.Default(),
	}
}

type DispatcherConfig struct {
	// TickInterval is the delay between two distributions of upload to the registered torrents
	TickInterval time.Duration `yaml:"tickInterval" validate:"gt=0"`
}

func (c DispatcherConfig) Default() *DispatcherConfig {
	return &DispatcherConfig{
		TickInterval: 1 * time.Second,
	}
}

// SpeedProviderConfig bounds the upload speed, in bytes per seconds, given to each torrent
type SpeedProviderConfig struct {
	MinimumBytesPerSeconds int64 `yaml:"min" validate:"min=0"`
	MaximumBytesPerSeconds int64 `yaml:"max" validate:"gtefield=MinimumBytesPerSeconds"`
}

func (c SpeedProviderConfig) Default() *SpeedProviderConfig {
	return &SpeedProviderConfig{
		MinimumBytesPerSeconds: 5000,
		MaximumBytesPerSeconds: 15000,
	}
}
