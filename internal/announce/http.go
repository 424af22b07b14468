package announce

import (
	"bytes"
	"context"
	"fmt"
	"github.com/anacrolix/dht/v2/krpc"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/tracker"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/pkg/errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type HttpConfig struct {
	Timeout       time.Duration `yaml:"timeout" validate:"required"`
	UserAgent     string        `yaml:"userAgent"`
	Port          uint16        `yaml:"port" validate:"min=1"`
	NumWant       int32         `yaml:"numWant" validate:"min=0"`
	PeerIdPattern string        `yaml:"peerIdPattern" validate:"required"`
	Key           *KeyConfig    `yaml:"key" validate:"required"`
}

func (c HttpConfig) Default() *HttpConfig {
	return &HttpConfig{
		Timeout:       15 * time.Second,
		UserAgent:     "qBittorrent/4.3.9",
		Port:          49152,
		NumWant:       200,
		PeerIdPattern: "-qB4390-[A-Za-z0-9_~\\(\\)\\!\\.\\*-]{12}",
		Key:           KeyConfig{}.Default(),
	}
}

type httpResponse struct {
	FailureReason string      `bencode:"failure reason"`
	Interval      int32       `bencode:"interval"`
	TrackerId     string      `bencode:"tracker id"`
	Complete      int32       `bencode:"complete"`
	Incomplete    int32       `bencode:"incomplete"`
	Peers         peerList    `bencode:"peers"`
	// BEP 7
	Peers6 krpc.CompactIPv6NodeAddrs `bencode:"peers6"`
}

// failure reasons sent by trackers that do not know (or no longer know) a torrent, lower case
var unregisteredTorrentReasons = []string{
	"unregistered torrent",
	"torrent not registered",
	"torrent not found",
	"unknown torrent",
	"torrent has been deleted",
}

type HttpAnnouncer struct {
	client    *http.Client
	userAgent string
	port      uint16
	numWant   int32
	peerId    PeerId
	key       Key
}

func NewHttpAnnouncer(conf *HttpConfig) (*HttpAnnouncer, error) {
	if err := validationutils.ValidateStruct("http announcer", conf); err != nil {
		return nil, err
	}
	peerId, err := GeneratePeerId(conf.PeerIdPattern)
	if err != nil {
		return nil, validationutils.NewFatalConfigurationError("http announcer", err)
	}
	key, err := GenerateKey(conf.Key)
	if err != nil {
		return nil, validationutils.NewFatalConfigurationError("http announcer", err)
	}

	return &HttpAnnouncer{
		client: &http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: conf.Timeout,
				}).DialContext,
				TLSHandshakeTimeout: conf.Timeout,
			},
		},
		userAgent: conf.UserAgent,
		port:      conf.Port,
		numWant:   conf.NumWant,
		peerId:    peerId,
		key:       key,
	}, nil
}

func (a *HttpAnnouncer) Announce(ctx context.Context, u url.URL, request Request) (Response, error) {
	a.setupQuery(&u, request)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, &ProtocolError{Tracker: u.Host, Reason: "failed to build request", Err: err}
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Response{}, &TransportError{Tracker: u.Host, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	if _, err = io.Copy(&buf, resp.Body); err != nil {
		return Response{}, &TransportError{Tracker: u.Host, Err: errors.Wrap(err, "failed to read response body")}
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, &TransportError{Tracker: u.Host, Err: fmt.Errorf("response status %s: %s", resp.Status, buf.String())}
	}

	var trackerResponse httpResponse
	err = bencode.Unmarshal(buf.Bytes(), &trackerResponse)
	if _, ok := err.(bencode.ErrUnusedTrailingBytes); ok {
		err = nil
	} else if err != nil {
		return Response{}, &ProtocolError{Tracker: u.Host, Reason: fmt.Sprintf("failed to decode %q", buf.Bytes()), Err: err}
	}

	if trackerResponse.FailureReason != "" {
		if isUnregisteredTorrentReason(trackerResponse.FailureReason) {
			return Response{ShouldDelete: true}, nil
		}
		return Response{}, &ProtocolError{Tracker: u.Host, Reason: fmt.Sprintf("tracker gave failure reason: %q", trackerResponse.FailureReason)}
	}
	if trackerResponse.Complete < 0 || trackerResponse.Incomplete < 0 || trackerResponse.Interval < 0 {
		return Response{}, &ProtocolError{Tracker: u.Host, Reason: fmt.Sprintf("negative values in response %q", buf.Bytes())}
	}

	peers := make([]tracker.Peer, 0, len(trackerResponse.Peers)+len(trackerResponse.Peers6))
	peers = append(peers, trackerResponse.Peers...)
	for _, na := range trackerResponse.Peers6 {
		peers = append(peers, tracker.Peer{
			IP:   na.IP,
			Port: na.Port,
		})
	}

	return Response{
		Interval: time.Duration(trackerResponse.Interval) * time.Second,
		Seeders:  trackerResponse.Complete,
		Leechers: trackerResponse.Incomplete,
		Peers:    peers,
	}, nil
}

func (a *HttpAnnouncer) setupQuery(u *url.URL, request Request) {
	q := u.Query()
	q.Set("info_hash", string(request.InfoHash[:]))
	q.Set("peer_id", string(a.peerId[:]))
	q.Set("port", strconv.FormatUint(uint64(a.port), 10))
	q.Set("uploaded", strconv.FormatInt(request.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(request.Downloaded, 10))
	q.Set("left", strconv.FormatInt(request.Left, 10))
	if request.Event != tracker.None {
		q.Set("event", request.Event.String())
	}
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("numwant", strconv.FormatInt(int64(a.numWant), 10))
	q.Set("key", a.key.String())
	q.Set("supportcrypto", "1")
	u.RawQuery = q.Encode()
}

func isUnregisteredTorrentReason(reason string) bool {
	reason = strings.ToLower(reason)
	for _, r := range unregisteredTorrentReasons {
		if strings.Contains(reason, r) {
			return true
		}
	}
	return false
}

// peerList is either a compact string of IPv4 peers (BEP 23) or a list of dictionaries.
type peerList []tracker.Peer

func (l *peerList) UnmarshalBencode(b []byte) error {
	var raw interface{}
	if err := bencode.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		var addrs krpc.CompactIPv4NodeAddrs
		if err := addrs.UnmarshalBinary([]byte(v)); err != nil {
			return errors.Wrap(err, "invalid compact peers")
		}
		for _, na := range addrs {
			*l = append(*l, tracker.Peer{
				IP:   na.IP[:],
				Port: na.Port,
			})
		}
		return nil
	case []interface{}:
		for _, i := range v {
			dict, ok := i.(map[string]interface{})
			if !ok {
				return fmt.Errorf("unsupported peer type: %T", i)
			}
			ip, _ := dict["ip"].(string)
			port, _ := dict["port"].(int64)
			id, _ := dict["peer id"].(string)
			*l = append(*l, tracker.Peer{
				IP:   net.ParseIP(ip),
				Port: int(port),
				ID:   []byte(id),
			})
		}
		return nil
	default:
		return fmt.Errorf("unsupported peers type: %T", raw)
	}
}
