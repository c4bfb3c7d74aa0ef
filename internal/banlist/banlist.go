// Package banlist loads and watches the banned-IP sidecar file:
// "Persisted state: banned.txt — newline-delimited IP list at a fixed
// repo-relative path; reloaded on change"). Grounded on
// github.com/fsnotify/fsnotify, present in cuemby/warren's dependency set.
package banlist

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// List is a reloadable set of banned IP addresses.
type List struct {
	mu   sync.RWMutex
	ips  map[string]struct{}
	path string
	log  zerolog.Logger
}

// New loads the ban list once from path. Returns an empty, non-nil List if
// the file does not exist yet (a fresh deployment with no bans).
func New(path string, log zerolog.Logger) *List {
	l := &List{
		ips:  make(map[string]struct{}),
		path: path,
		log:  log.With().Str("component", "banlist").Logger(),
	}
	l.reload()
	return l
}

// Banned reports whether ip is on the list.
func (l *List) Banned(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ips[ip]
	return ok
}

func (l *List) reload() {
	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn().Err(err).Str("path", l.path).Msg("failed to open ban list")
		}
		return
	}
	defer f.Close()

	next := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ip := strings.TrimSpace(scanner.Text())
		if ip == "" || strings.HasPrefix(ip, "#") {
			continue
		}
		next[ip] = struct{}{}
	}

	l.mu.Lock()
	l.ips = next
	l.mu.Unlock()
	l.log.Info().Int("count", len(next)).Msg("ban list reloaded")
}

// Watch starts an fsnotify watch on the ban file's directory, reloading on
// any write or rename event that targets the file, until stop is closed.
func (l *List) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := dirOf(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != l.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					l.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Warn().Err(err).Msg("ban list watcher error")
			}
		}
	}()

	return nil
}

func dirOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
