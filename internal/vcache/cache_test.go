package vcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"oath/internal/ast"
	"oath/internal/contract"
)

const divSource = `module m {
	fn safe_divide(a: I64, b: I64) -> I64
		requires(b != 0)
		ensures(result == a / b)
	{
		return a / b;
	}
}`

func divFunction(t *testing.T) *ast.Function {
	t.Helper()
	return parsedModule(t, divSource).Functions[0]
}

func provenRun(fn *ast.Function) []contract.Outcome {
	outs := make([]contract.Outcome, 0, fn.ContractCount())
	for _, r := range fn.Requires {
		outs = append(outs, contract.Outcome{
			Kind:     contract.KindRequires,
			Expr:     r.String(),
			Span:     ast.SpanOf(r),
			Status:   contract.Proven,
			Duration: 12 * time.Millisecond,
		})
	}
	for _, e := range fn.Ensures {
		outs = append(outs, contract.Outcome{
			Kind:     contract.KindEnsures,
			Expr:     e.String(),
			Span:     ast.SpanOf(e),
			Status:   contract.Proven,
			Duration: 30 * time.Millisecond,
		})
	}
	return outs
}

func TestMemoryRoundTrip(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))

	replayed, ok := cache.Lookup(fp, fn)
	require.True(t, ok)
	require.Len(t, replayed, fn.ContractCount())
	for _, out := range replayed {
		assert.Equal(t, contract.Proven, out.Status, "a replay keeps the original status")
		assert.True(t, out.CacheHit)
	}
	assert.Equal(t, contract.KindRequires, replayed[0].Kind)
	assert.Equal(t, contract.KindEnsures, replayed[1].Kind)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Saved)
	assert.Equal(t, 1, stats.Entries)
}

func TestLookupMissesUnknownFingerprint(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)

	_, ok := cache.Lookup("0000", fn)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), cache.Stats().Misses)
}

func TestContractCountMismatchIsAMiss(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)
	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))

	// Same name, one contract fewer: the stored run no longer lines up.
	slimmed := parsedModule(t, `module m {
		fn safe_divide(a: I64, b: I64) -> I64
			requires(b != 0)
		{
			return a / b;
		}
	}`).Functions[0]

	_, ok := cache.Lookup(fp, slimmed)
	assert.False(t, ok, "a count mismatch must re-verify, never default")
}

func TestFunctionNameMismatchIsAMiss(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)
	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))

	renamed := parsedModule(t, `module m {
		fn checked_divide(a: I64, b: I64) -> I64
			requires(b != 0)
			ensures(result == a / b)
		{
			return a / b;
		}
	}`).Functions[0]

	_, ok := cache.Lookup(fp, renamed)
	assert.False(t, ok)
}

func TestSkippedRunsAreNotRecorded(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	outs := provenRun(fn)
	outs[1].Status = contract.Skipped
	outs[1].Reason = "no SMT solver available"
	require.NoError(t, cache.Record(fp, fn, outs))

	_, ok := cache.Lookup(fp, fn)
	assert.False(t, ok, "a run that never verified must not pin its gap")
	assert.Equal(t, uint64(0), cache.Stats().Saved)
}

func TestDisabledCacheDoesNothing(t *testing.T) {
	cache := Disabled()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	assert.False(t, cache.Enabled())
	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))

	_, ok := cache.Lookup(fp, fn)
	assert.False(t, ok)
	assert.Zero(t, cache.Stats().Entries)
}

func TestFileCachePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	first, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, first.Record(fp, fn, provenRun(fn)))

	second, err := NewFileCache(dir)
	require.NoError(t, err)
	replayed, ok := second.Lookup(fp, fn)
	require.True(t, ok, "entries survive process restarts")
	assert.Len(t, replayed, fn.ContractCount())
	assert.Equal(t, 1, second.Stats().Entries)
}

func TestCorruptEntryIsDroppedAndRemoved(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	require.NoError(t, err)
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	path := filepath.Join(dir, fp+entryExt)
	require.NoError(t, os.WriteFile(path, []byte("not a cache entry"), 0o644))

	_, ok := cache.Lookup(fp, fn)
	assert.False(t, ok, "corruption is a miss, not an error")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "the corrupt entry must be deleted")
}

func TestTamperedFingerprintFieldIsAMiss(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	require.NoError(t, err)
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	// Well-formed msgpack claiming a different fingerprint.
	data, err := msgpack.Marshal(&record{
		Fingerprint: "somebody-else",
		Function:    fn.Name.Value,
		Outcomes:    []outcomeRecord{{Status: int(contract.Proven)}, {Status: int(contract.Proven)}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fp+entryExt), data, 0o644))

	_, ok := cache.Lookup(fp, fn)
	assert.False(t, ok)
}

func TestClearRemovesEntries(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	require.NoError(t, err)
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)
	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))
	require.Equal(t, 1, cache.Stats().Entries)

	require.NoError(t, cache.Clear())
	assert.Zero(t, cache.Stats().Entries)
	_, ok := cache.Lookup(fp, fn)
	assert.False(t, ok)
}

func TestDisprovenReplayKeepsCounterexample(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)

	outs := provenRun(fn)
	outs[1].Status = contract.Disproven
	outs[1].Counterexample = &contract.Counterexample{
		Inputs: map[string]string{"a": "-9223372036854775808", "b": "-1"},
	}
	require.NoError(t, cache.Record(fp, fn, outs))

	replayed, ok := cache.Lookup(fp, fn)
	require.True(t, ok)
	require.NotNil(t, replayed[1].Counterexample)
	assert.Equal(t, "-1", replayed[1].Counterexample.Inputs["b"])
	assert.Nil(t, replayed[0].Counterexample)
}

func TestReplaySpansFollowTheCurrentTree(t *testing.T) {
	cache := NewMemory()
	fn := divFunction(t)
	fp := NewFingerprinter(nil, "").Fingerprint(fn)
	require.NoError(t, cache.Record(fp, fn, provenRun(fn)))

	// Identical content shifted down two lines: same fingerprint,
	// different spans.
	shifted := parsedModule(t, "// moved\n\n"+divSource).Functions[0]
	shiftedFp := NewFingerprinter(nil, "").Fingerprint(shifted)
	require.Equal(t, fp, shiftedFp, "formatting does not invalidate the cache")

	replayed, ok := cache.Lookup(shiftedFp, shifted)
	require.True(t, ok)
	assert.Equal(t, ast.SpanOf(shifted.Requires[0]).Start.Line, replayed[0].Span.Start.Line,
		"replayed spans point into the file as it is now")
}
