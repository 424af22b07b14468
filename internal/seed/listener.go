package seed

import (
	"github.com/anacrolix/torrent/tracker"
	"sync"
)

// AnnounceEventListener is implemented by anything that must react to the lifecycle of a Session.
// Callbacks are invoked synchronously from the goroutine of the triggering call: a listener must not call
// Session.Stop from inside a callback (run it in a separate goroutine instead) since Stop waits for the
// session loop which is busy notifying the listener.
type AnnounceEventListener interface {
	// OnWillAnnounce is fired right before a request is sent to the tracker.
	OnWillAnnounce(event tracker.AnnounceEvent, session *Session)
	// OnAnnounceSuccess is fired once the response is parsed. Seeders and leechers of the stats are already up to date.
	OnAnnounceSuccess(session *Session)
	OnAnnounceFail(session *Session, message string)
	OnNoMoreLeecherForTorrent(session *Session, stats *TorrentStats)
	OnShouldDeleteTorrent(session *Session, stats *TorrentStats)
	OnSessionStart(session *Session)
	OnSessionStop(session *Session)
}

// Broadcaster is a thread safe composite AnnounceEventListener.
// Every registered listener receives every event exactly once, in registration order, before the
// triggering call returns.
type Broadcaster struct {
	listeners []AnnounceEventListener
	lock      *sync.RWMutex
}

func NewBroadcaster(listeners ...AnnounceEventListener) *Broadcaster {
	b := &Broadcaster{
		listeners: []AnnounceEventListener{},
		lock:      &sync.RWMutex{},
	}
	for _, l := range listeners {
		b.Register(l)
	}
	return b
}

func (b *Broadcaster) Register(listener AnnounceEventListener) (unregisterCallback func()) {
	if listener == nil {
		return func() {}
	}
	b.lock.Lock()
	defer b.lock.Unlock()

	b.listeners = append(b.listeners, listener)
	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		var index = -1
		for i, l := range b.listeners {
			if l == listener {
				index = i
				break
			}
		}
		if index == -1 {
			// already unregistered
			return
		}

		listeners := make([]AnnounceEventListener, 0, len(b.listeners)-1)
		listeners = append(listeners, b.listeners[:index]...)
		b.listeners = append(listeners, b.listeners[index+1:]...)
	}
}

// snapshot allows listeners to (un)register from within a callback without dead-locking.
func (b *Broadcaster) snapshot() []AnnounceEventListener {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.listeners
}

func (b *Broadcaster) OnWillAnnounce(event tracker.AnnounceEvent, session *Session) {
	for _, l := range b.snapshot() {
		l.OnWillAnnounce(event, session)
	}
}

func (b *Broadcaster) OnAnnounceSuccess(session *Session) {
	for _, l := range b.snapshot() {
		l.OnAnnounceSuccess(session)
	}
}

func (b *Broadcaster) OnAnnounceFail(session *Session, message string) {
	for _, l := range b.snapshot() {
		l.OnAnnounceFail(session, message)
	}
}

func (b *Broadcaster) OnNoMoreLeecherForTorrent(session *Session, stats *TorrentStats) {
	for _, l := range b.snapshot() {
		l.OnNoMoreLeecherForTorrent(session, stats)
	}
}

func (b *Broadcaster) OnShouldDeleteTorrent(session *Session, stats *TorrentStats) {
	for _, l := range b.snapshot() {
		l.OnShouldDeleteTorrent(session, stats)
	}
}

func (b *Broadcaster) OnSessionStart(session *Session) {
	for _, l := range b.snapshot() {
		l.OnSessionStart(session)
	}
}

func (b *Broadcaster) OnSessionStop(session *Session) {
	for _, l := range b.snapshot() {
		l.OnSessionStop(session)
	}
}

// BaseAnnounceEventListener is a no-op AnnounceEventListener, set only the callbacks you care about.
type BaseAnnounceEventListener struct {
	OnWillAnnounceFunc            func(event tracker.AnnounceEvent, session *Session)
	OnAnnounceSuccessFunc         func(session *Session)
	OnAnnounceFailFunc            func(session *Session, message string)
	OnNoMoreLeecherForTorrentFunc func(session *Session, stats *TorrentStats)
	OnShouldDeleteTorrentFunc     func(session *Session, stats *TorrentStats)
	OnSessionStartFunc            func(session *Session)
	OnSessionStopFunc             func(session *Session)
}

func (l *BaseAnnounceEventListener) OnWillAnnounce(event tracker.AnnounceEvent, session *Session) {
	if l.OnWillAnnounceFunc != nil {
		l.OnWillAnnounceFunc(event, session)
	}
}

func (l *BaseAnnounceEventListener) OnAnnounceSuccess(session *Session) {
	if l.OnAnnounceSuccessFunc != nil {
		l.OnAnnounceSuccessFunc(session)
	}
}

func (l *BaseAnnounceEventListener) OnAnnounceFail(session *Session, message string) {
	if l.OnAnnounceFailFunc != nil {
		l.OnAnnounceFailFunc(session, message)
	}
}

func (l *BaseAnnounceEventListener) OnNoMoreLeecherForTorrent(session *Session, stats *TorrentStats) {
	if l.OnNoMoreLeecherForTorrentFunc != nil {
		l.OnNoMoreLeecherForTorrentFunc(session, stats)
	}
}

func (l *BaseAnnounceEventListener) OnShouldDeleteTorrent(session *Session, stats *TorrentStats) {
	if l.OnShouldDeleteTorrentFunc != nil {
		l.OnShouldDeleteTorrentFunc(session, stats)
	}
}

func (l *BaseAnnounceEventListener) OnSessionStart(session *Session) {
	if l.OnSessionStartFunc != nil {
		l.OnSessionStartFunc(session)
	}
}

func (l *BaseAnnounceEventListener) OnSessionStop(session *Session) {
	if l.OnSessionStopFunc != nil {
		l.OnSessionStopFunc(session)
	}
}
