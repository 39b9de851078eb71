// Package vcache replays verification outcomes for functions that have
// not changed since they were last verified. Entries are addressed by a
// content fingerprint, so a hit means the function, its contracts, and
// everything it calls are byte-identical to the run that produced the
// stored verdicts, and those verdicts are reported as-is.
package vcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"oath/internal/ast"
	"oath/internal/contract"
)

// Cache stores and replays per-function verification runs.
type Cache struct {
	store  store // nil when disabled
	hits   atomic.Uint64
	misses atomic.Uint64
	saved  atomic.Uint64
}

// Disabled returns a cache that never hits and never stores.
func Disabled() *Cache { return &Cache{} }

// NewMemory returns a cache that lives for one process.
func NewMemory() *Cache { return &Cache{store: newMemoryStore()} }

// NewFileCache returns a cache persisted under dir, creating it if
// needed.
func NewFileCache(dir string) (*Cache, error) {
	s, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &Cache{store: s}, nil
}

// DefaultDir is the per-user cache location, $XDG_CACHE_HOME/oath on
// Linux.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no user cache directory: %w", err)
	}
	return filepath.Join(base, "oath"), nil
}

func (c *Cache) Enabled() bool { return c != nil && c.store != nil }

// Lookup replays the run recorded under fp against the current
// function. Each replayed outcome keeps its original status and is
// marked as a cache hit; spans and contract text come from the current
// tree. Any mismatch with the declared contracts is a miss, never a
// default verdict.
func (c *Cache) Lookup(fp string, fn *ast.Function) ([]contract.Outcome, bool) {
	if !c.Enabled() {
		return nil, false
	}
	rec, ok := c.store.Load(fp)
	if !ok || !validRecord(rec, fn) {
		c.misses.Add(1)
		return nil, false
	}

	outcomes := make([]contract.Outcome, 0, fn.ContractCount())
	i := 0
	for _, r := range fn.Requires {
		outcomes = append(outcomes, replay(rec.Outcomes[i], contract.KindRequires, r))
		i++
	}
	for _, e := range fn.Ensures {
		outcomes = append(outcomes, replay(rec.Outcomes[i], contract.KindEnsures, e))
		i++
	}
	c.hits.Add(1)
	log.Debugf("cache hit for %s", fn.Name.Value)
	return outcomes, true
}

// Record stores a completed run under fp. Runs containing skipped
// outcomes are not stored: a skip means verification never happened,
// and replaying it would pin that gap past its cause.
func (c *Cache) Record(fp string, fn *ast.Function, outcomes []contract.Outcome) error {
	if !c.Enabled() || len(outcomes) != fn.ContractCount() {
		return nil
	}
	recs := make([]outcomeRecord, len(outcomes))
	for i, out := range outcomes {
		if out.Status == contract.Skipped {
			return nil
		}
		recs[i] = outcomeRecord{
			Status:     int(out.Status),
			Reason:     out.Reason,
			DurationUs: out.Duration.Microseconds(),
		}
		if out.Counterexample != nil {
			recs[i].Inputs = out.Counterexample.Inputs
		}
	}
	c.saved.Add(1)
	return c.store.Save(&record{
		Fingerprint: fp,
		Function:    fn.Name.Value,
		CreatedAt:   time.Now(),
		Outcomes:    recs,
	})
}

// Clear removes every stored entry.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Clear()
}

// Stats reports activity since the cache was opened plus the current
// entry count.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Saved   uint64
	Entries int
}

func (c *Cache) Stats() Stats {
	s := Stats{}
	if c == nil {
		return s
	}
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Saved = c.saved.Load()
	if c.Enabled() {
		s.Entries = c.store.Len()
	}
	return s
}

// validRecord checks a loaded record against the function it claims to
// cover. The outcome list must match the declared contracts one to one
// and every status must be a known value.
func validRecord(rec *record, fn *ast.Function) bool {
	if rec.Function != fn.Name.Value || len(rec.Outcomes) != fn.ContractCount() {
		return false
	}
	for _, out := range rec.Outcomes {
		if out.Status < int(contract.Proven) || out.Status > int(contract.Skipped) {
			return false
		}
	}
	return true
}

func replay(rec outcomeRecord, kind contract.Kind, expr ast.Expr) contract.Outcome {
	out := contract.Outcome{
		Kind:     kind,
		Expr:     expr.String(),
		Span:     ast.SpanOf(expr),
		Status:   contract.Status(rec.Status),
		Reason:   rec.Reason,
		CacheHit: true,
		Duration: time.Duration(rec.DurationUs) * time.Microsecond,
	}
	if len(rec.Inputs) > 0 {
		out.Counterexample = &contract.Counterexample{Inputs: rec.Inputs}
	}
	return out
}
