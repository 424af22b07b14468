package seed

import (
	"github.com/anacrolix/torrent/tracker"
	"github.com/stretchr/testify/assert"
	"testing"
)

func recordingListener(name string, calls *[]string) *BaseAnnounceEventListener {
	return &BaseAnnounceEventListener{
		OnWillAnnounceFunc:            func(event tracker.AnnounceEvent, session *Session) { *calls = append(*calls, name+":will-"+event.String()) },
		OnAnnounceSuccessFunc:         func(session *Session) { *calls = append(*calls, name+":success") },
		OnAnnounceFailFunc:            func(session *Session, message string) { *calls = append(*calls, name+":fail-"+message) },
		OnNoMoreLeecherForTorrentFunc: func(session *Session, stats *TorrentStats) { *calls = append(*calls, name+":no-leecher") },
		OnShouldDeleteTorrentFunc:     func(session *Session, stats *TorrentStats) { *calls = append(*calls, name+":delete") },
		OnSessionStartFunc:            func(session *Session) { *calls = append(*calls, name+":start") },
		OnSessionStopFunc:             func(session *Session) { *calls = append(*calls, name+":stop") },
	}
}

func TestBroadcaster_ShouldDeliverEveryEventToEveryListenerInOrder(t *testing.T) {
	var calls []string
	b := NewBroadcaster(recordingListener("a", &calls), recordingListener("b", &calls))

	b.OnSessionStart(nil)
	b.OnWillAnnounce(tracker.Started, nil)
	b.OnAnnounceSuccess(nil)
	b.OnAnnounceFail(nil, "boom")
	b.OnNoMoreLeecherForTorrent(nil, nil)
	b.OnShouldDeleteTorrent(nil, nil)
	b.OnSessionStop(nil)

	assert.Equal(t, []string{
		"a:start", "b:start",
		"a:will-started", "b:will-started",
		"a:success", "b:success",
		"a:fail-boom", "b:fail-boom",
		"a:no-leecher", "b:no-leecher",
		"a:delete", "b:delete",
		"a:stop", "b:stop",
	}, calls)
}

func TestBroadcaster_UnregisterShouldStopDelivery(t *testing.T) {
	var calls []string
	b := NewBroadcaster()
	unregisterA := b.Register(recordingListener("a", &calls))
	b.Register(recordingListener("b", &calls))

	unregisterA()
	unregisterA()
	b.OnAnnounceSuccess(nil)

	assert.Equal(t, []string{"b:success"}, calls)
}

func TestBroadcaster_ShouldIgnoreNilListener(t *testing.T) {
	b := NewBroadcaster(nil)
	unregister := b.Register(nil)
	unregister()

	assert.NotPanics(t, func() { b.OnSessionStart(nil) })
}

func TestBroadcaster_ShouldAllowUnregisterFromCallback(t *testing.T) {
	var calls []string
	b := NewBroadcaster()
	var unregister func()
	unregister = b.Register(&BaseAnnounceEventListener{
		OnAnnounceSuccessFunc: func(session *Session) {
			calls = append(calls, "self")
			unregister()
		},
	})
	b.Register(recordingListener("other", &calls))

	b.OnAnnounceSuccess(nil)
	b.OnAnnounceSuccess(nil)

	assert.Equal(t, []string{"self", "other:success", "other:success"}, calls)
}

func TestBaseAnnounceEventListener_ShouldBeNoopByDefault(t *testing.T) {
	l := &BaseAnnounceEventListener{}
	assert.NotPanics(t, func() {
		l.OnWillAnnounce(tracker.None, nil)
		l.OnAnnounceSuccess(nil)
		l.OnAnnounceFail(nil, "")
		l.OnNoMoreLeecherForTorrent(nil, nil)
		l.OnShouldDeleteTorrent(nil, nil)
		l.OnSessionStart(nil)
		l.OnSessionStop(nil)
	})
}
