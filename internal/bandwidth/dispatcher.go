package bandwidth

import (
	"context"
	"fmt"
	"github.com/anacrolix/torrent/tracker"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/seed"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"sync"
	"time"
)

var _ seed.AnnounceEventListener = &Dispatcher{}

// Dispatcher periodically credits upload to every registered torrent according to its current speed.
// It registers torrents by itself when used as a seed.AnnounceEventListener.
type Dispatcher struct {
	tickInterval time.Duration
	members      map[*seed.TorrentStats]struct{}
	lock         *sync.RWMutex

	isRunning     bool
	quit          chan struct{} // closed by Stop, one per run
	loopDone      chan struct{} // closed when the loop of the last run has returned
	lifecycleLock *sync.Mutex
}

func NewDispatcher(conf *DispatcherConfig) (*Dispatcher, error) {
	if err := validationutils.ValidateStruct("bandwidth dispatcher", conf); err != nil {
		return nil, err
	}
	return &Dispatcher{
		tickInterval:  conf.TickInterval,
		members:       make(map[*seed.TorrentStats]struct{}),
		lock:          &sync.RWMutex{},
		isRunning:     false,
		lifecycleLock: &sync.Mutex{},
	}, nil
}

func (d *Dispatcher) Start() {
	d.lifecycleLock.Lock()
	defer d.lifecycleLock.Unlock()
	if d.isRunning {
		return
	}
	if d.loopDone != nil {
		// the loop of the previous run may still be finishing its last tick
		<-d.loopDone
	}
	d.isRunning = true
	quit := make(chan struct{})
	loopDone := make(chan struct{})
	d.quit, d.loopDone = quit, loopDone

	logs.GetLogger().Info("bandwidth dispatcher: started", zap.Duration("tick-interval", d.tickInterval))
	go func() {
		defer close(loopDone)
		ticker := time.NewTicker(d.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.safeTick()
			case <-quit:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for the tick in progress if any, then forgets every registered torrent.
// If ctx expires first the loop still exits once its tick is over.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.lifecycleLock.Lock()
	defer d.lifecycleLock.Unlock()
	if !d.isRunning {
		return
	}
	d.isRunning = false

	log := logs.GetLogger()
	log.Info("bandwidth dispatcher: stopping")
	close(d.quit)
	select {
	case <-d.loopDone:
	case <-ctx.Done():
		log.Warn("bandwidth dispatcher: tick in progress did not complete before stop deadline", zap.Error(ctx.Err()))
	}

	d.lock.Lock()
	d.members = make(map[*seed.TorrentStats]struct{})
	d.lock.Unlock()
	log.Info("bandwidth dispatcher: stopped")
}

func (d *Dispatcher) Register(stats *seed.TorrentStats) {
	if stats == nil {
		return
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.members[stats] = struct{}{}
}

// Deregister is a no-op for unknown torrents
func (d *Dispatcher) Deregister(stats *seed.TorrentStats) {
	d.lock.Lock()
	defer d.lock.Unlock()
	delete(d.members, stats)
}

func (d *Dispatcher) Size() int {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return len(d.members)
}

type memberSpeed struct {
	stats *seed.TorrentStats
	speed int64
}

func (d *Dispatcher) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			logs.GetLogger().Error("bandwidth dispatcher: failed to dispatch upload", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	d.tick()
}

// tick gives speed / activeMembers * intervalMillis / 1000 bytes to each member, where activeMembers counts the
// members with a speed > 0. Integer arithmetic, truncating at each step.
func (d *Dispatcher) tick() {
	d.lock.RLock()
	snapshot := make([]memberSpeed, 0, len(d.members))
	var activeMembers int64
	for stats := range d.members {
		speed := stats.CurrentSpeed()
		if speed > 0 {
			activeMembers++
		}
		snapshot = append(snapshot, memberSpeed{stats: stats, speed: speed})
	}
	d.lock.RUnlock()

	if activeMembers == 0 {
		return
	}

	intervalMillis := d.tickInterval.Milliseconds()
	var dispatched int64
	for _, m := range snapshot {
		bytes := m.speed / activeMembers * intervalMillis / 1000
		m.stats.AddUploaded(bytes)
		dispatched += bytes
	}
	logs.GetLogger().Debug("bandwidth dispatcher: dispatched upload",
		zap.Int64("active-torrents", activeMembers),
		zap.String("dispatched", humanize.Bytes(uint64(dispatched))),
	)
}

func (d *Dispatcher) OnSessionStart(session *seed.Session) {
	d.Register(session.Stats())
}

func (d *Dispatcher) OnSessionStop(session *seed.Session) {
	d.Deregister(session.Stats())
}

func (d *Dispatcher) OnWillAnnounce(tracker.AnnounceEvent, *seed.Session) {}
func (d *Dispatcher) OnAnnounceSuccess(*seed.Session) {}
func (d *Dispatcher) OnAnnounceFail(*seed.Session, string) {}
func (d *Dispatcher) OnNoMoreLeecherForTorrent(*seed.Session, *seed.TorrentStats) {}
func (d *Dispatcher) OnShouldDeleteTorrent(*seed.Session, *seed.TorrentStats) {}
