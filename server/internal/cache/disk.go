package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const entrySuffix = ".entry.json"

var entryName = regexp.MustCompile(`^[0-9a-f]{32}` + regexp.QuoteMeta(entrySuffix) + `$`)

// Disk is a Cache that keeps one JSON file per key under a base directory.
// File names are the hex MD5 of the clear-text key plus entrySuffix. Entries
// survive restarts. Other files in the directory are never touched.
type Disk struct {
	dir string
	now func() time.Time
}

// NewDisk creates the base directory if needed and returns a Disk cache rooted there.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory %q: %w", dir, err)
	}
	return &Disk{dir: dir, now: time.Now}, nil
}

// Dir returns the base directory.
func (d *Disk) Dir() string { return d.dir }

// Get reads the entry for key. A missing file or an expired entry is a miss;
// unreadable or corrupt files are reported as errors.
func (d *Disk) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: read %q: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return "", false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	if e.Key != key || e.Expired(d.now()) {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Set writes the entry for key via a temp file and rename, so readers never
// see a partial file.
func (d *Disk) Set(_ context.Context, key, value string, ttl time.Duration) error {
	b, err := json.Marshal(Entry{Key: key, Value: value, ExpiresAt: expiry(d.now(), ttl)})
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	tmp, err := os.CreateTemp(d.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: write %q: %w", key, err)
	}
	return nil
}

// Invalidate deletes the file for key. A missing file is not an error.
func (d *Disk) Invalidate(_ context.Context, key string) error {
	err := os.Remove(d.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: invalidate %q: %w", key, err)
	}
	return nil
}

// Purge removes entry files that are expired at now, or that cannot be decoded.
// Only files named like entries are considered. It returns the number of
// files removed.
func (d *Disk) Purge(now time.Time) (int, error) {
	ents, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	removed := 0
	for _, de := range ents {
		if de.IsDir() || !entryName.MatchString(de.Name()) {
			continue
		}
		p := filepath.Join(d.dir, de.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err == nil && !e.Expired(now) {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		} else {
			slog.Warn("cache: failed to remove entry", "path", p, "err", err)
		}
	}
	return removed, nil
}

// Run purges expired files every interval until ctx is cancelled.
func (d *Disk) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := d.Purge(now)
			if err != nil {
				slog.Warn("cache: purge failed", "dir", d.dir, "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("cache: purged expired files", "count", n)
			}
		}
	}
}

func (d *Disk) path(key string) string {
	return filepath.Join(d.dir, encodeKey(key)+entrySuffix)
}

// encodeKey hashes k with MD5 and returns the hex string.
func encodeKey(k string) string {
	h := md5.Sum([]byte(k))
	return hex.EncodeToString(h[:])
}
