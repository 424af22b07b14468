package seedmanager

import (
	"github.com/anthonyraymond/watcher"
	"os"
	"regexp"
)

// visible files ending with .torrent, any case
var torrentFileName = regexp.MustCompile(`^[^.].*\.(?i)torrent$`)

// torrentFileFilter is a watcher.FilterFileHookFunc keeping only the torrent files at the root of the watched
// folder. Empty files are skipped until a later poll sees them written.
func torrentFileFilter(info os.FileInfo, _ string) error {
	if info.IsDir() || info.Size() == 0 {
		return watcher.ErrSkip
	}
	if !torrentFileName.MatchString(info.Name()) {
		return watcher.ErrSkip
	}
	return nil
}
