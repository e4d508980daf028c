// Package cache provides the on-disk store for downloaded hymn recordings.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// AudioSubdir is the subdirectory for cached recordings.
	AudioSubdir = "audio"
	// AppName is used for the cache directory name.
	AppName = "hymnal"
	// AudioExt is the extension of committed recordings.
	AudioExt = ".mp3"

	partialExt = ".partial"
)

var ErrInvalidKey = errors.New("invalid cache key")

// Key identifies a recording in the store. It is the zero-padded hymn number.
type Key string

// Entry describes a recording in the store.
type Entry struct {
	Key       Key
	LocalPath string
	Present   bool
}

// Store manages downloaded recordings on disk. Entries are never evicted.
//
// Commit is not safe to call concurrently for the same key; the download
// coordinator guarantees a single writer per key.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir. An empty baseDir selects the
// platform cache directory.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		dir, err := GetCacheDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}

	return &Store{baseDir: baseDir}, nil
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) audioDir() string {
	return filepath.Join(s.baseDir, AudioSubdir)
}

// PathFor returns the final location of the recording for key.
func (s *Store) PathFor(key Key) string {
	return filepath.Join(s.audioDir(), string(key)+AudioExt)
}

// Exists reports whether a committed recording is present for key.
// Any error reading the store is reported as not cached.
func (s *Store) Exists(key Key) bool {
	if validateKey(key) != nil {
		return false
	}

	info, err := os.Stat(s.PathFor(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Err(err).Str("key", string(key)).Msg("Failed to stat cached recording")
		}
		return false
	}

	return info.Mode().IsRegular() && info.Size() > 0
}

// Entry returns the current view of the entry for key.
func (s *Store) Entry(key Key) Entry {
	return Entry{
		Key:       key,
		LocalPath: s.PathFor(key),
		Present:   s.Exists(key),
	}
}

// Commit writes the recording read from r to a temporary file and publishes it
// at PathFor(key) only after the whole body has been written and synced.
func (s *Store) Commit(key Key, r io.Reader) (Entry, error) {
	if err := validateKey(key); err != nil {
		return Entry{}, err
	}

	dir := s.audioDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+string(key)+"-*"+partialExt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return Entry{}, fmt.Errorf("failed to write recording: %w", err)
	}

	if written == 0 {
		tmpFile.Close()
		return Entry{}, fmt.Errorf("failed to write recording: empty body")
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return Entry{}, fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return Entry{}, fmt.Errorf("failed to close temp file: %w", err)
	}

	finalPath := s.PathFor(key)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Entry{}, fmt.Errorf("failed to publish recording: %w", err)
	}

	tmpPath = ""
	log.Debug().Str("key", string(key)).Int64("bytes", written).Str("file", finalPath).Msg("Recording committed")

	return Entry{Key: key, LocalPath: finalPath, Present: true}, nil
}

// CleanPartials removes temporary files left behind by interrupted commits.
// It must not run while downloads are in flight.
func (s *Store) CleanPartials() error {
	dir := s.audioDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialExt) {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		if err := os.Remove(filePath); err != nil {
			log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove partial recording")
			failed++
		} else {
			removed++
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}

func validateKey(key Key) error {
	k := string(key)
	if k == "" || k == "." || k == ".." || strings.ContainsAny(k, `/\`) || strings.ContainsRune(k, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	return nil
}
