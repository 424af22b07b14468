package seed

import (
	"context"
	"fmt"
	"github.com/anacrolix/torrent/tracker"
	"github.com/anthonyraymond/joal-seeder/internal/announce"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"net/url"
	"sync"
	"time"
)

// We never download anything: every announce claims the torrent is complete.
const (
	simulatedDownloaded int64 = 0
	simulatedLeft       int64 = 0
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Announcing
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Announcing:
		return "announcing"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// SpeedSampler provides the upload speed, in bytes per seconds, given to a torrent after each successful announce.
type SpeedSampler interface {
	Sample() int64
}

type BackoffConfig struct {
	Initial time.Duration `yaml:"initial" validate:"required"`
	Max     time.Duration `yaml:"max" validate:"required,gtefield=Initial"`
}

type SessionConfig struct {
	// IntervalOverride replaces the interval sent by the tracker when > 0
	IntervalOverride time.Duration `yaml:"intervalOverride" validate:"min=0"`
	// DefaultInterval is used when the tracker does not send any interval
	DefaultInterval time.Duration `yaml:"defaultInterval" validate:"required"`
	// MinInterval is the minimum delay between two announces of the same session, whatever the tracker says
	MinInterval time.Duration  `yaml:"minInterval" validate:"required"`
	Backoff     *BackoffConfig `yaml:"backoff" validate:"required"`
	// StopTimeout bounds the time spent sending the stopped announce
	StopTimeout time.Duration `yaml:"stopTimeout" validate:"required"`
}

func (c SessionConfig) Default() *SessionConfig {
	return &SessionConfig{
		IntervalOverride: 0,
		DefaultInterval:  1800 * time.Second,
		MinInterval:      5 * time.Second,
		Backoff: &BackoffConfig{
			Initial: 5 * time.Second,
			Max:     1800 * time.Second,
		},
		StopTimeout: 10 * time.Second,
	}
}

// Session drives the announce lifecycle of one torrent against one tracker.
// A Session is single use: once stopped it can not be started again.
type Session struct {
	id         uuid.UUID
	trackerUrl url.URL
	stats      *TorrentStats
	announcer  announce.Announcer
	speed      SpeedSampler
	listener   AnnounceEventListener
	conf       *SessionConfig

	// owned by the loop goroutine
	backoff *backoff.ExponentialBackOff
	limiter *rate.Limiter

	state            atomic.Int32
	consecutiveFails atomic.Int32
	nextAnnounceAt   atomic.Int64 // unix nano

	// OnSessionStart is fired under startLock, terminate reads startNotified under it
	startLock     *sync.Mutex
	startNotified bool
	ended         bool

	lock           *sync.Mutex
	hasBeenStarted bool
	stopRequested  bool
	cancelLoop     context.CancelFunc
	loopDone       chan struct{}
	terminateOnce  sync.Once
	stopped        chan struct{}
}

func NewSession(trackerUrl *url.URL, stats *TorrentStats, announcer announce.Announcer, speed SpeedSampler, listener AnnounceEventListener, conf *SessionConfig) (*Session, error) {
	if err := validationutils.ValidateStruct("announce session", conf); err != nil {
		return nil, err
	}
	if trackerUrl == nil || trackerUrl.Host == "" {
		return nil, validationutils.NewFatalConfigurationError("announce session", errors.New("a tracker url is required"))
	}
	if stats == nil || announcer == nil || speed == nil {
		return nil, validationutils.NewFatalConfigurationError("announce session", errors.New("stats, announcer and speed sampler are required"))
	}
	if listener == nil {
		listener = &BaseAnnounceEventListener{}
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     conf.Backoff.Initial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         conf.Backoff.Max,
		MaxElapsedTime:      0, // retry forever, only Stop ends a session
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return &Session{
		id:         uuid.New(),
		trackerUrl: *trackerUrl,
		stats:      stats,
		announcer:  announcer,
		speed:      speed,
		listener:   listener,
		conf:       conf,
		backoff:    b,
		limiter:    rate.NewLimiter(rate.Every(conf.MinInterval), 1),
		lock:       &sync.Mutex{},
		startLock:  &sync.Mutex{},
		loopDone:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}, nil
}

func (s *Session) Id() uuid.UUID {
	return s.id
}

func (s *Session) Stats() *TorrentStats {
	return s.stats
}

func (s *Session) TrackerUrl() url.URL {
	return s.trackerUrl
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) ConsecutiveFails() int32 {
	return s.consecutiveFails.Load()
}

// NextAnnounceAt is the zero time until the first announce has been scheduled
func (s *Session) NextAnnounceAt() time.Time {
	nano := s.nextAnnounceAt.Load()
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Start runs the announce loop in the background, the first announce is a started announce.
func (s *Session) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.hasBeenStarted {
		return errors.New("session has already been started")
	}
	s.hasBeenStarted = true

	logs.GetLogger().Info("announce session: starting",
		zap.String("infohash", s.stats.InfoHash().HexString()),
		zap.String("tracker", s.trackerUrl.Host),
	)

	s.state.Store(int32(Starting))
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoop = cancel
	go s.run(ctx)
	return nil
}

// Stop interrupts the announce loop, sends a stopped announce and returns once it has been answered, has
// failed or the stop timeout expired. Stop can be called from any goroutine and any number of times,
// except from an AnnounceEventListener callback.
func (s *Session) Stop(ctx context.Context) {
	s.lock.Lock()
	if !s.hasBeenStarted {
		s.lock.Unlock()
		return
	}
	if s.stopRequested {
		s.lock.Unlock()
		s.awaitStopped(ctx)
		return
	}
	s.stopRequested = true
	s.lock.Unlock()

	s.markStopping()
	s.cancelLoop()
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		logs.GetLogger().Warn("announce session: loop did not exit before context expiry",
			zap.String("infohash", s.stats.InfoHash().HexString()),
		)
	}
	s.terminate(ctx)
}

// markStopping moves a live session to Stopping, a session that already ended stays Stopped.
func (s *Session) markStopping() {
	for {
		current := State(s.state.Load())
		if current == Stopping || current == Stopped {
			return
		}
		if s.state.CAS(int32(current), int32(Stopping)) {
			return
		}
	}
}

func (s *Session) awaitStopped(ctx context.Context) {
	select {
	case <-s.stopped:
	case <-ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.loopDone)
	log := logs.GetLogger()

	event := tracker.Started
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		resp, err := s.announce(ctx, event)
		s.notifySessionStart()
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		if err != nil {
			// keep the same event until the tracker acknowledged it
			wait = s.nextBackoff()
		} else {
			s.backoff.Reset()
			if resp.ShouldDelete {
				log.Warn("announce session: tracker does not know this torrent anymore, stopping",
					zap.String("infohash", s.stats.InfoHash().HexString()),
					zap.String("tracker", s.trackerUrl.Host),
				)
				s.markStopping()
				s.terminate(context.Background())
				return
			}
			event = tracker.None
			wait = s.intervalFor(resp)
		}

		s.nextAnnounceAt.Store(time.Now().Add(wait).UnixNano())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// notifySessionStart fires OnSessionStart the first time it is called, unless the session has already ended.
func (s *Session) notifySessionStart() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.startNotified || s.ended {
		return
	}
	s.startNotified = true
	s.listener.OnSessionStart(s)
}

func (s *Session) nextBackoff() time.Duration {
	next := s.backoff.NextBackOff()
	if next == backoff.Stop || next > s.conf.Backoff.Max {
		return s.conf.Backoff.Max
	}
	return next
}

func (s *Session) intervalFor(resp announce.Response) time.Duration {
	if s.conf.IntervalOverride > 0 {
		return s.conf.IntervalOverride
	}
	if resp.Interval > 0 {
		return resp.Interval
	}
	return s.conf.DefaultInterval
}

// announce sends one announce and translates the outcome into stats updates and listener notifications.
func (s *Session) announce(ctx context.Context, event tracker.AnnounceEvent) (announce.Response, error) {
	log := logs.GetLogger()
	if !s.state.CAS(int32(Running), int32(Announcing)) {
		s.state.CAS(int32(Starting), int32(Announcing))
	}
	defer s.state.CAS(int32(Announcing), int32(Running))

	s.listener.OnWillAnnounce(event, s)
	resp, err := s.announcer.Announce(ctx, s.trackerUrl, announce.Request{
		InfoHash:   s.stats.InfoHash(),
		Event:      event,
		Uploaded:   s.stats.Uploaded(),
		Downloaded: simulatedDownloaded,
		Left:       simulatedLeft,
	})
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// interrupted by Stop, the tracker is not to blame
		log.Debug("announce session: announce interrupted",
			zap.String("infohash", s.stats.InfoHash().HexString()),
			zap.String("event", event.String()),
		)
		return announce.Response{}, err
	}
	if err != nil {
		fails := s.consecutiveFails.Inc()
		log.Warn("announce session: failed to announce",
			zap.String("infohash", s.stats.InfoHash().HexString()),
			zap.String("event", event.String()),
			zap.Int32("consecutive-fails", fails),
			zap.Error(err),
		)
		s.listener.OnAnnounceFail(s, err.Error())
		return announce.Response{}, err
	}
	if event != tracker.Stopped && ctx.Err() != nil {
		// the session is stopping, the answer is of no use anymore
		return announce.Response{}, ctx.Err()
	}
	s.consecutiveFails.Store(0)

	if event == tracker.Stopped {
		s.listener.OnAnnounceSuccess(s)
		return resp, nil
	}

	if resp.ShouldDelete {
		s.stats.UpdateSwarm(0, 0)
		s.listener.OnAnnounceSuccess(s)
		s.listener.OnShouldDeleteTorrent(s, s.stats)
		return resp, nil
	}

	seeders, leechers := toCount(resp.Seeders), toCount(resp.Leechers)
	s.stats.UpdateSwarm(seeders, leechers)
	if seeders == 0 || leechers == 0 {
		s.stats.RefreshSpeed(0)
	} else {
		s.stats.RefreshSpeed(s.speed.Sample())
	}
	log.Info("announce session: announced",
		zap.String("infohash", s.stats.InfoHash().HexString()),
		zap.String("event", event.String()),
		zap.Uint32("seeders", seeders),
		zap.Uint32("leechers", leechers),
		zap.Int64("uploaded", s.stats.Uploaded()),
	)

	s.listener.OnAnnounceSuccess(s)
	if leechers == 0 {
		s.listener.OnNoMoreLeecherForTorrent(s, s.stats)
	}
	return resp, nil
}

// terminate sends the stopped announce and notifies the end of the session, only the first call has an effect.
func (s *Session) terminate(ctx context.Context) {
	s.terminateOnce.Do(func() {
		defer close(s.stopped)
		defer s.state.Store(int32(Stopped))

		s.startLock.Lock()
		s.ended = true
		started := s.startNotified
		s.startLock.Unlock()
		if !started {
			// the tracker never heard of us
			return
		}

		stopCtx, cancel := context.WithTimeout(ctx, s.conf.StopTimeout)
		defer cancel()
		if _, err := s.announce(stopCtx, tracker.Stopped); err != nil {
			logs.GetLogger().Warn("announce session: stopped announce was not delivered",
				zap.String("infohash", s.stats.InfoHash().HexString()),
				zap.Error(err),
			)
		}
		s.listener.OnSessionStop(s)
		logs.GetLogger().Info("announce session: stopped",
			zap.String("infohash", s.stats.InfoHash().HexString()),
			zap.Int64("uploaded", s.stats.Uploaded()),
		)
	})
}

func toCount(v int32) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
