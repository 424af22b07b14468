package seedmanager

import "time"

type Config struct {
	// SimultaneousSeed is the maximum number of torrents seeded at the same time, others wait in a queue
	SimultaneousSeed int `yaml:"simultaneousSeed" validate:"min=1"`
	// RemoveTorrentWithZeroPeers archives a torrent as soon as the tracker reports no leecher for it
	RemoveTorrentWithZeroPeers bool          `yaml:"removeTorrentWithZeroPeers"`
	WatchInterval              time.Duration `yaml:"watchInterval" validate:"gt=0"`
}

func (c Config) Default() *Config {
	return &Config{
		SimultaneousSeed:           5,
		RemoveTorrentWithZeroPeers: false,
		WatchInterval:              2 * time.Second,
	}
}
