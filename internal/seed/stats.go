package seed

import (
	"github.com/anacrolix/torrent/metainfo"
	"go.uber.org/atomic"
)

// TorrentStats holds the counters of one seeded torrent.
// It is written by two goroutines: the owning Session (peers and speed, on announce success) and the
// bandwidth dispatcher (uploaded, on each tick). Every field is an independent atomic.
type TorrentStats struct {
	infoHash metainfo.Hash
	seeders  atomic.Uint32
	leechers atomic.Uint32
	uploaded atomic.Int64
	speed    atomic.Int64
}

func NewTorrentStats(infoHash metainfo.Hash) *TorrentStats {
	return &TorrentStats{infoHash: infoHash}
}

func (s *TorrentStats) InfoHash() metainfo.Hash {
	return s.infoHash
}

func (s *TorrentStats) Seeders() uint32 {
	return s.seeders.Load()
}

func (s *TorrentStats) Leechers() uint32 {
	return s.leechers.Load()
}

// UpdateSwarm stores the peer counts returned by the tracker. If the swarm has no seeder or no leecher the
// speed drops to zero right away, before the owner gets a chance to sample a new one.
func (s *TorrentStats) UpdateSwarm(seeders uint32, leechers uint32) {
	s.seeders.Store(seeders)
	s.leechers.Store(leechers)
	if seeders == 0 || leechers == 0 {
		s.speed.Store(0)
	}
}

func (s *TorrentStats) Uploaded() int64 {
	return s.uploaded.Load()
}

// AddUploaded increments the uploaded counter. Negative amounts are ignored, uploaded never decreases.
func (s *TorrentStats) AddUploaded(bytes int64) {
	if bytes <= 0 {
		return
	}
	s.uploaded.Add(bytes)
}

// CurrentSpeed is the upload rate, in bytes per second, this torrent is believed to have right now.
func (s *TorrentStats) CurrentSpeed() int64 {
	return s.speed.Load()
}

// RefreshSpeed replaces the current speed. Negative values are stored as 0.
func (s *TorrentStats) RefreshSpeed(bytesPerSeconds int64) {
	if bytesPerSeconds < 0 {
		bytesPerSeconds = 0
	}
	s.speed.Store(bytesPerSeconds)
}
