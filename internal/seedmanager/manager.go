package seedmanager

import (
	"context"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anthonyraymond/joal-seeder/internal/announce"
	"github.com/anthonyraymond/joal-seeder/internal/bandwidth"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/seed"
	"github.com/anthonyraymond/joal-seeder/internal/stop"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/anthonyraymond/watcher"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Announcer is able to tell which tracker urls it can announce to.
type Announcer interface {
	announce.Announcer
	Supports(u *url.URL) bool
}

type Paths struct {
	TorrentsDir string
	ArchiveDir  string
}

type Status struct {
	Seeding []metainfo.Hash
	Queued  []metainfo.Hash
}

type torrentEntry struct {
	path       string
	name       string
	trackerUrl *url.URL
	stats      *seed.TorrentStats
}

// Manager seeds the torrent files found in a folder. At most Config.SimultaneousSeed torrents are seeded at once,
// the others wait for a seeding slot in the order they were discovered.
// A Manager runs once: it can not be started again after Stop.
type Manager struct {
	conf        *Config
	sessionConf *seed.SessionConfig
	paths       Paths
	announcer   Announcer
	speed       seed.SpeedSampler
	dispatcher  *bandwidth.Dispatcher
	listeners   *seed.Broadcaster

	lock           *sync.Mutex
	hasBeenStarted atomic.Bool
	isRunning      bool
	commands       chan func()
	quit           stop.Chan
	loopExit       chan struct{}

	// owned by the loop goroutine
	torrents     map[metainfo.Hash]*torrentEntry
	queue        []metainfo.Hash
	sessions     map[metainfo.Hash]*seed.Session
	shuttingDown bool
}

func New(conf *Config, sessionConf *seed.SessionConfig, paths Paths, announcer Announcer, speed seed.SpeedSampler, dispatcher *bandwidth.Dispatcher) (*Manager, error) {
	if err := validationutils.ValidateStruct("seed manager", conf); err != nil {
		return nil, err
	}
	if err := validationutils.ValidateStruct("seed manager", sessionConf); err != nil {
		return nil, err
	}
	if announcer == nil || speed == nil || dispatcher == nil {
		return nil, validationutils.NewFatalConfigurationError("seed manager", errors.New("announcer, speed sampler and dispatcher are required"))
	}
	if paths.TorrentsDir == "" || paths.ArchiveDir == "" {
		return nil, validationutils.NewFatalConfigurationError("seed manager", errors.New("torrents and archive folders are required"))
	}
	var err error
	if paths.TorrentsDir, err = filepath.Abs(paths.TorrentsDir); err != nil {
		return nil, errors.Wrapf(err, "failed to transform '%s' to an absolute path", paths.TorrentsDir)
	}
	if paths.ArchiveDir, err = filepath.Abs(paths.ArchiveDir); err != nil {
		return nil, errors.Wrapf(err, "failed to transform '%s' to an absolute path", paths.ArchiveDir)
	}

	m := &Manager{
		conf:        conf,
		sessionConf: sessionConf,
		paths:       paths,
		announcer:   announcer,
		speed:       speed,
		dispatcher:  dispatcher,
		lock:        &sync.Mutex{},
		commands:    make(chan func(), 50),
		quit:        stop.NewChan(),
		loopExit:    make(chan struct{}),
		torrents:    make(map[metainfo.Hash]*torrentEntry),
		sessions:    make(map[metainfo.Hash]*seed.Session),
	}
	m.listeners = seed.NewBroadcaster(dispatcher, &EventLogger{}, &seed.BaseAnnounceEventListener{
		OnNoMoreLeecherForTorrentFunc: m.onNoMoreLeecher,
		OnShouldDeleteTorrentFunc:     m.onShouldDelete,
		OnSessionStopFunc:             m.onSessionStop,
	})
	return m, nil
}

// RegisterListener subscribes to the events of every session run by this manager.
func (m *Manager) RegisterListener(listener seed.AnnounceEventListener) (unregisterCallback func()) {
	return m.listeners.Register(listener)
}

func (m *Manager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.hasBeenStarted.Load() {
		return errors.New("seed manager has already been started")
	}
	log := logs.GetLogger()

	for _, dir := range []string{m.paths.TorrentsDir, m.paths.ArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create folder '%s'", dir)
		}
	}

	torrentFileWatcher := watcher.New()
	torrentFileWatcher.AddFilterHook(torrentFileFilter)
	if err := torrentFileWatcher.Add(m.paths.TorrentsDir); err != nil {
		return errors.Wrapf(err, "failed to watch folder '%s'", m.paths.TorrentsDir)
	}

	m.hasBeenStarted.Store(true)
	m.isRunning = true
	m.dispatcher.Start()
	go m.run(torrentFileWatcher)

	// Trigger create events after watcher started (to take into account already present torrent files on startup)
	go func() {
		torrentFileWatcher.Wait()
		log.Info("file watcher: started", zap.String("monitored-folder", m.paths.TorrentsDir))
		for fullPath, info := range torrentFileWatcher.WatchedFiles() {
			select {
			case torrentFileWatcher.Event <- watcher.Event{Op: watcher.Create, Path: fullPath, FileInfo: info}:
			case <-m.loopExit:
				return
			}
		}
	}()

	go func() {
		if err := torrentFileWatcher.Start(m.conf.WatchInterval); err != nil {
			log.Error("failed to run file watcher", zap.Error(err))
		}
	}()

	log.Info("seed manager: started", zap.Int("simultaneous-seed", m.conf.SimultaneousSeed))
	return nil
}

// Stop sends a stopped announce for every seeding torrent, in parallel, and waits for them until ctx expires.
func (m *Manager) Stop(ctx context.Context) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.isRunning {
		return
	}
	m.isRunning = false

	log := logs.GetLogger()
	log.Info("seed manager: stopping")
	if err := m.quit.Send(ctx); err != nil {
		log.Warn("seed manager: stop did not complete in time", zap.Error(err))
		return
	}
	log.Info("seed manager: stopped")
}

// Status returns the torrents being seeded and those waiting for a slot.
func (m *Manager) Status() Status {
	result := make(chan Status, 1)
	if !m.submit(func() { result <- m.status() }) {
		return Status{}
	}
	select {
	case s := <-result:
		return s
	case <-m.loopExit:
		return Status{}
	}
}

// ArchiveTorrent stops seeding the torrent and moves its file to the archive folder.
func (m *Manager) ArchiveTorrent(infoHash metainfo.Hash) {
	m.submit(func() { m.archive(infoHash, "requested") })
}

// submit runs command on the loop goroutine. It must not lock m.lock: sessions submit while Stop holds it.
func (m *Manager) submit(command func()) bool {
	if !m.hasBeenStarted.Load() {
		return false
	}
	select {
	case m.commands <- command:
		return true
	case <-m.loopExit:
		return false
	}
}

func (m *Manager) run(torrentFileWatcher *watcher.Watcher) {
	defer close(m.loopExit)
	log := logs.GetLogger()

	for {
		select {
		case command := <-m.commands:
			command()
		case event := <-torrentFileWatcher.Event:
			switch event.Op {
			case watcher.Create:
				log.Info(event.String())
				m.addTorrent(event.Path, event.FileInfo)
			case watcher.Rename:
				log.Info(event.String())
				m.renameTorrent(event.OldPath, event.Path)
			case watcher.Move:
				log.Info(event.String())
				if filepath.Dir(event.Path) == filepath.Clean(m.paths.TorrentsDir) {
					m.renameTorrent(event.OldPath, event.Path)
				} else {
					m.removeTorrent(event.OldPath)
				}
			case watcher.Remove:
				log.Info(event.String())
				m.removeTorrent(event.Path)
				if event.OldPath != "" && event.OldPath != event.Path {
					m.removeTorrent(event.OldPath)
				}
			default:
				// does not handle WRITE since it may occur while the file is being written before CREATE
				log.Debug("seed manager: file event ignored", zap.String("file", filepath.Base(event.Path)), zap.String("event", event.Op.String()))
			}
		case err := <-torrentFileWatcher.Error:
			log.Warn("file watcher has reported an error", zap.Error(err))
		case stopRequest := <-m.quit:
			m.shutdown(torrentFileWatcher, stopRequest)
			return
		}
	}
}

func (m *Manager) shutdown(torrentFileWatcher *watcher.Watcher, stopRequest *stop.Request) {
	defer stopRequest.NotifyDone()
	log := logs.GetLogger()
	m.shuttingDown = true

	watcherClosed := make(chan struct{})
	go func() {
		defer close(watcherClosed)
		torrentFileWatcher.Wait()
		torrentFileWatcher.Close()
		<-torrentFileWatcher.Closed
	}()

	sessionsStopped := make(chan struct{})
	wg := &sync.WaitGroup{}
	for _, s := range m.sessions {
		wg.Add(1)
		go func(s *seed.Session) {
			defer wg.Done()
			s.Stop(stopRequest.Ctx())
		}(s)
	}
	go func() {
		wg.Wait()
		close(sessionsStopped)
	}()

	// sessions report their end through commands, keep consuming them while waiting
	for sessionsStopped != nil || watcherClosed != nil {
		select {
		case <-sessionsStopped:
			sessionsStopped = nil
		case <-watcherClosed:
			watcherClosed = nil
		case <-torrentFileWatcher.Event:
		case <-torrentFileWatcher.Error:
		case command := <-m.commands:
			command()
		case <-stopRequest.Ctx().Done():
			log.Warn("seed manager: some torrents did not stop in time", zap.Int("pending", len(m.sessions)))
			sessionsStopped, watcherClosed = nil, nil
		}
	}

	m.dispatcher.Stop(stopRequest.Ctx())
}

func (m *Manager) status() Status {
	s := Status{
		Seeding: make([]metainfo.Hash, 0, len(m.sessions)),
		Queued:  make([]metainfo.Hash, len(m.queue)),
	}
	for hash := range m.sessions {
		s.Seeding = append(s.Seeding, hash)
	}
	copy(s.Queued, m.queue)
	return s
}

func (m *Manager) addTorrent(path string, info os.FileInfo) {
	log := logs.GetLogger()
	if info != nil && torrentFileFilter(info, path) != nil {
		return
	}

	meta, err := metainfo.LoadFromFile(path)
	if err != nil {
		log.Error("seed manager: failed to parse torrent from file", zap.String("file", path), zap.Error(err))
		return
	}
	infoHash := meta.HashInfoBytes()
	if existing, ok := m.torrents[infoHash]; ok {
		log.Warn("seed manager: torrent is already known, ignoring the duplicate",
			zap.String("infohash", infoHash.HexString()),
			zap.String("file", path),
			zap.String("known-file", existing.path),
		)
		return
	}
	trackerUrl := m.selectTracker(meta)
	if trackerUrl == nil {
		log.Error("seed manager: torrent has no supported tracker", zap.String("file", path))
		return
	}
	name := filepath.Base(path)
	if info, err := meta.UnmarshalInfo(); err == nil && info.Name != "" {
		name = info.Name
	}

	m.torrents[infoHash] = &torrentEntry{
		path:       path,
		name:       name,
		trackerUrl: trackerUrl,
		stats:      seed.NewTorrentStats(infoHash),
	}
	m.queue = append(m.queue, infoHash)
	log.Info("seed manager: torrent added", zap.String("infohash", infoHash.HexString()), zap.String("name", name))
	m.fillSlots()
}

// selectTracker returns the first announce url, in tier order, the announcer supports.
func (m *Manager) selectTracker(meta *metainfo.MetaInfo) *url.URL {
	for _, tier := range meta.UpvertedAnnounceList() {
		for _, raw := range tier {
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			if m.announcer.Supports(u) {
				return u
			}
		}
	}
	return nil
}

func (m *Manager) findByPath(path string) (metainfo.Hash, *torrentEntry, bool) {
	for hash, entry := range m.torrents {
		if entry.path == path {
			return hash, entry, true
		}
	}
	return metainfo.Hash{}, nil, false
}

func (m *Manager) renameTorrent(oldPath string, newPath string) {
	_, entry, found := m.findByPath(oldPath)
	if !found {
		return
	}
	entry.path = newPath
}

func (m *Manager) removeTorrent(path string) {
	hash, _, found := m.findByPath(path)
	if !found {
		return
	}
	m.forget(hash)
	logs.GetLogger().Info("seed manager: torrent removed", zap.String("infohash", hash.HexString()))
}

// forget drops every trace of the torrent and stops its session if any.
func (m *Manager) forget(infoHash metainfo.Hash) {
	delete(m.torrents, infoHash)
	for i, h := range m.queue {
		if h == infoHash {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			break
		}
	}
	m.stopSession(infoHash)
}

func (m *Manager) archive(infoHash metainfo.Hash, reason string) {
	log := logs.GetLogger()
	entry, ok := m.torrents[infoHash]
	if !ok {
		return
	}
	m.forget(infoHash)

	target := filepath.Join(m.paths.ArchiveDir, filepath.Base(entry.path))
	if err := os.Rename(entry.path, target); err != nil {
		log.Error("seed manager: failed to move torrent file to archive folder", zap.String("file", entry.path), zap.Error(err))
		return
	}
	log.Info("seed manager: torrent archived",
		zap.String("infohash", infoHash.HexString()),
		zap.String("name", entry.name),
		zap.String("reason", reason),
	)
}

// stopSession stops in background, the seeding slot is released once the session is fully stopped.
func (m *Manager) stopSession(infoHash metainfo.Hash) {
	s, ok := m.sessions[infoHash]
	if !ok {
		return
	}
	go func() {
		s.Stop(context.Background())
		m.submit(func() { m.sessionEnded(s) })
	}()
}

func (m *Manager) sessionEnded(s *seed.Session) {
	infoHash := s.Stats().InfoHash()
	if current, ok := m.sessions[infoHash]; ok && current == s {
		delete(m.sessions, infoHash)
	}
	m.fillSlots()
}

func (m *Manager) fillSlots() {
	for !m.shuttingDown && len(m.sessions) < m.conf.SimultaneousSeed && len(m.queue) > 0 {
		infoHash := m.queue[0]
		m.queue = m.queue[1:]
		entry, ok := m.torrents[infoHash]
		if !ok {
			continue
		}
		m.startSession(infoHash, entry)
	}
}

func (m *Manager) startSession(infoHash metainfo.Hash, entry *torrentEntry) {
	log := logs.GetLogger()
	s, err := seed.NewSession(entry.trackerUrl, entry.stats, m.announcer, m.speed, m.listeners, m.sessionConf)
	if err != nil {
		log.Error("seed manager: failed to create session", zap.String("infohash", infoHash.HexString()), zap.Error(err))
		return
	}
	if err := s.Start(); err != nil {
		log.Error("seed manager: failed to start session", zap.String("infohash", infoHash.HexString()), zap.Error(err))
		return
	}
	m.sessions[infoHash] = s
}

func (m *Manager) onNoMoreLeecher(_ *seed.Session, stats *seed.TorrentStats) {
	if !m.conf.RemoveTorrentWithZeroPeers {
		return
	}
	infoHash := stats.InfoHash()
	m.submit(func() { m.archive(infoHash, "no more leecher") })
}

func (m *Manager) onShouldDelete(_ *seed.Session, stats *seed.TorrentStats) {
	infoHash := stats.InfoHash()
	m.submit(func() { m.archive(infoHash, "unregistered from tracker") })
}

func (m *Manager) onSessionStop(s *seed.Session) {
	m.submit(func() { m.sessionEnded(s) })
}
