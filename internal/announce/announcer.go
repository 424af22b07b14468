package announce

import (
	"context"
	"fmt"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/tracker"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"go.uber.org/zap"
	"net/url"
	"strings"
	"time"
)

type Request struct {
	InfoHash   metainfo.Hash
	Event      tracker.AnnounceEvent
	Uploaded   int64
	Downloaded int64
	Left       int64
}

type Response struct {
	Interval time.Duration // Zero when the tracker did not send one
	Seeders  int32
	Leechers int32
	Peers    []tracker.Peer
	// ShouldDelete is set when the tracker told us the torrent is not (or no longer) registered.
	ShouldDelete bool
}

// Announcer encodes an announce, sends it to the tracker and decodes the answer.
// A failure is either a *TransportError or a *ProtocolError.
type Announcer interface {
	Announce(ctx context.Context, trackerUrl url.URL, request Request) (Response, error)
}

// SchemeAnnouncer routes announces to the Announcer in charge of the tracker url scheme.
type SchemeAnnouncer struct {
	Http Announcer
	Udp  Announcer
}

func (a *SchemeAnnouncer) Announce(ctx context.Context, u url.URL, request Request) (Response, error) {
	log := logs.GetLogger()
	var currentAnnouncer Announcer
	if strings.HasPrefix(u.Scheme, "http") {
		currentAnnouncer = a.Http
	} else if strings.HasPrefix(u.Scheme, "udp") {
		currentAnnouncer = a.Udp
	}

	if currentAnnouncer == nil {
		return Response{}, &ProtocolError{
			Tracker: u.Host,
			Reason:  fmt.Sprintf("scheme '%s' is not supported", u.Scheme),
		}
	}
	log.Debug("announcing to tracker",
		zap.String("event", request.Event.String()),
		zap.String("infohash", request.InfoHash.HexString()),
		zap.Int64("uploaded", request.Uploaded),
		zap.String("tracker", u.Host),
	)

	return currentAnnouncer.Announce(ctx, u, request)
}

// Supports tells whether an announce url can be handled by this SchemeAnnouncer
func (a *SchemeAnnouncer) Supports(u *url.URL) bool {
	if strings.HasPrefix(u.Scheme, "http") {
		return a.Http != nil
	}
	if strings.HasPrefix(u.Scheme, "udp") {
		return a.Udp != nil
	}
	return false
}
