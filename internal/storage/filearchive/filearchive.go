// Package filearchive is a trade-format sink storage driver that writes
// each flushed batch as gzipped NDJSON under dir/YYYY/MM/DD.jsonl.gz,
// rotating out the oldest files once the archive exceeds maxBytes. A
// direct generalization of the teacher's internal/archive/archiver.go,
// which pulled aged rows out of Mongo on a timer; here the persistence
// Scheduler already hands every driver the same just-flushed batch, so
// there is no cursor to track and no deletion from an upstream store.
package filearchive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Store is a trade-format persistence.Storage that appends to local
// gzip-NDJSON files.
type Store struct {
	dir      string
	maxBytes int64
	log      zerolog.Logger
}

// New creates a Store rooted at dir, rotating out old files once the
// archive exceeds maxGB gigabytes.
func New(dir string, maxGB int, log zerolog.Logger) *Store {
	return &Store{
		dir:      dir,
		maxBytes: int64(maxGB) * 1 << 30,
		log:      log.With().Str("component", "filearchive").Logger(),
	}
}

func (s *Store) Name() string               { return "filearchive" }
func (s *Store) Format() persistence.Format { return persistence.TradeFormat }

// Connect ensures the archive root exists.
func (s *Store) Connect(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir archive root: %w", err)
	}
	return nil
}

// Save groups the batch by UTC day and appends each group to its day's
// gzip file, then rotates out the oldest files if over budget.
func (s *Store) Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error {
	byDay := make(map[string][]trade.Trade)
	for _, t := range batch {
		day := time.UnixMilli(t.Timestamp).UTC().Format("2006/01/02")
		byDay[day] = append(byDay[day], t)
	}

	for day, trades := range byDay {
		if err := s.appendDay(day, trades); err != nil {
			return fmt.Errorf("archive %s: %w", day, err)
		}
	}

	s.rotate()
	return nil
}

func (s *Store) appendDay(day string, trades []trade.Trade) error {
	path := filepath.Join(s.dir, day+".jsonl.gz")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// rotate deletes the oldest archive files until total size is under
// maxBytes, mirroring archiver.go's rotate.
func (s *Store) rotate() {
	if s.maxBytes <= 0 {
		return
	}

	type entry struct {
		path string
		size int64
	}
	var files []entry
	var total int64

	filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= s.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= s.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			s.log.Warn().Err(err).Str("path", f.path).Msg("rotate: remove failed")
			continue
		}
		total -= f.size
		s.log.Info().Str("path", f.path).Int64("bytes", f.size).Msg("rotated out archive file")
	}
}

// ErrFetchUnsupported is returned by Fetch: the archive is write-only.
var ErrFetchUnsupported = fmt.Errorf("filearchive: fetch not supported")

// Fetch is unsupported; the file archive is a cold write-behind sink.
func (s *Store) Fetch(ctx context.Context, q persistence.FetchQuery) (persistence.FetchResult, error) {
	return persistence.FetchResult{}, ErrFetchUnsupported
}
