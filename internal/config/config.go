package config

import (
	"github.com/anthonyraymond/joal-seeder/internal/announce"
	"github.com/anthonyraymond/joal-seeder/internal/bandwidth"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/seed"
	"github.com/anthonyraymond/joal-seeder/internal/seedmanager"
)

// AppConfig is the content of the config.yml file
type AppConfig struct {
	Log       *logs.LogConfig      `yaml:"log" validate:"required"`
	Seed      *seedmanager.Config  `yaml:"seed" validate:"required"`
	Bandwidth *bandwidth.Config    `yaml:"bandwidth" validate:"required"`
	Announce  *seed.SessionConfig  `yaml:"announce" validate:"required"`
	Tracker   *announce.HttpConfig `yaml:"tracker" validate:"required"`
}

func (c AppConfig) Default() *AppConfig {
	return &AppConfig{
		Log:       logs.LogConfig{}.Default(),
		Seed:      seedmanager.Config{}.Default(),
		Bandwidth: bandwidth.Config{}.Default(),
		Announce:  seed.SessionConfig{}.Default(),
		Tracker:   announce.HttpConfig{}.Default(),
	}
}

type JoalConfig struct {
	TorrentsDir         string
	ArchivedTorrentsDir string
	App                 *AppConfig
}
