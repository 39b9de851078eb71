package vcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/vmihailenco/msgpack/v5"
)

var log = commonlog.GetLogger("oath.vcache")

const entryExt = ".vc"

// record is the serialized form of one function's verification run.
type record struct {
	Fingerprint string          `msgpack:"fp"`
	Function    string          `msgpack:"fn"`
	CreatedAt   time.Time       `msgpack:"at"`
	Outcomes    []outcomeRecord `msgpack:"oc"`
}

// outcomeRecord carries the replayable part of an outcome. Spans and
// contract text are rebuilt from the current tree on replay so cached
// results follow the source as it moves within a file.
type outcomeRecord struct {
	Status     int               `msgpack:"s"`
	Reason     string            `msgpack:"r,omitempty"`
	Inputs     map[string]string `msgpack:"cx,omitempty"`
	DurationUs int64             `msgpack:"us"`
}

type store interface {
	Load(fingerprint string) (*record, bool)
	Save(rec *record) error
	Clear() error
	Len() int
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*record)}
}

func (s *memoryStore) Load(fp string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fp]
	return rec, ok
}

func (s *memoryStore) Save(rec *record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Fingerprint] = rec
	return nil
}

func (s *memoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record)
	return nil
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// fileStore keeps one msgpack file per fingerprint under a directory.
type fileStore struct {
	dir string
	mu  sync.RWMutex
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) path(fp string) string {
	return filepath.Join(s.dir, fp+entryExt)
}

func (s *fileStore) Load(fp string) (*record, bool) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path(fp))
	s.mu.RUnlock()
	if err != nil {
		return nil, false
	}

	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil || rec.Fingerprint != fp {
		// A torn or tampered entry is a miss, and it is removed so the
		// next run rewrites it instead of tripping over it again.
		log.Warningf("dropping unreadable cache entry %s", fp)
		s.mu.Lock()
		os.Remove(s.path(fp))
		s.mu.Unlock()
		return nil, false
	}
	return &rec, true
}

func (s *fileStore) Save(rec *record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	// Rename is atomic: concurrent readers see the old entry or the new
	// one, never a torn write.
	if err := os.Rename(tmp.Name(), s.path(rec.Fingerprint)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish cache file: %w", err)
	}
	return nil
}

func (s *fileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), entryExt) {
			os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	return nil
}

func (s *fileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), entryExt) {
			n++
		}
	}
	return n
}
