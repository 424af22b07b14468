package seedmanager

import (
	"github.com/anacrolix/torrent/tracker"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/seed"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// EventLogger reports every session event in the application logs.
type EventLogger struct{}

var _ seed.AnnounceEventListener = &EventLogger{}

func sessionFields(session *seed.Session) []zap.Field {
	stats := session.Stats()
	u := session.TrackerUrl()
	return []zap.Field{
		zap.String("infohash", stats.InfoHash().HexString()),
		zap.String("tracker", u.Host),
		zap.String("session", session.Id().String()),
	}
}

func (l *EventLogger) OnWillAnnounce(event tracker.AnnounceEvent, session *seed.Session) {
	logs.GetLogger().Debug("seed event: will announce", append(sessionFields(session),
		zap.String("event", event.String()),
		zap.String("uploaded", humanize.Bytes(uint64(session.Stats().Uploaded()))),
	)...)
}

func (l *EventLogger) OnAnnounceSuccess(session *seed.Session) {
	stats := session.Stats()
	logs.GetLogger().Info("seed event: announce succeeded", append(sessionFields(session),
		zap.Uint32("seeders", stats.Seeders()),
		zap.Uint32("leechers", stats.Leechers()),
		zap.String("speed", humanize.Bytes(uint64(stats.CurrentSpeed()))+"/s"),
		zap.Time("next-announce", session.NextAnnounceAt()),
	)...)
}

func (l *EventLogger) OnAnnounceFail(session *seed.Session, message string) {
	logs.GetLogger().Warn("seed event: announce failed", append(sessionFields(session),
		zap.String("reason", message),
		zap.Int32("consecutive-fails", session.ConsecutiveFails()),
	)...)
}

func (l *EventLogger) OnNoMoreLeecherForTorrent(session *seed.Session, _ *seed.TorrentStats) {
	logs.GetLogger().Info("seed event: no more leecher", sessionFields(session)...)
}

func (l *EventLogger) OnShouldDeleteTorrent(session *seed.Session, _ *seed.TorrentStats) {
	logs.GetLogger().Warn("seed event: tracker asked to delete the torrent", sessionFields(session)...)
}

func (l *EventLogger) OnSessionStart(session *seed.Session) {
	logs.GetLogger().Info("seed event: session started", sessionFields(session)...)
}

func (l *EventLogger) OnSessionStop(session *seed.Session) {
	logs.GetLogger().Info("seed event: session stopped", append(sessionFields(session),
		zap.String("uploaded", humanize.Bytes(uint64(session.Stats().Uploaded()))),
	)...)
}
