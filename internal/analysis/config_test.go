package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/contract"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oath.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigOverridesOnlyNamedKeys(t *testing.T) {
	path := writeConfig(t, "smt: false\ntimeout_ms: 250\nunknown_calls: strict\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.UseSmtVerification)
	assert.Equal(t, uint(250), cfg.VerificationTimeoutMs)
	assert.Equal(t, PolicyStrict, cfg.UnknownCallPolicy)

	// Keys the file never mentions keep their defaults.
	assert.True(t, cfg.EnableDataflow)
	assert.True(t, cfg.EnableBugPatterns)
	assert.True(t, cfg.EnableTaintAnalysis)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, ModeTrap, cfg.IntegerMode)
}

func TestLoadConfigRejectsBadEnums(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "unknown_calls: lenient\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_calls")

	_, err = LoadConfig(writeConfig(t, "integer_mode: saturate\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integer_mode")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNormalizedFillsZeroValues(t *testing.T) {
	cfg := Config{}.normalized()

	assert.Greater(t, cfg.Workers, 0)
	assert.NotZero(t, cfg.VerificationTimeoutMs)
	assert.Equal(t, PolicyDefault, cfg.UnknownCallPolicy)
	assert.Equal(t, ModeTrap, cfg.IntegerMode)
}

func TestSaltTracksVerdictChangingSettings(t *testing.T) {
	base := DefaultConfig()

	wrapped := base
	wrapped.IntegerMode = ModeWrap
	assert.NotEqual(t, base.Salt(), wrapped.Salt())

	hurried := base
	hurried.VerificationTimeoutMs = 1
	assert.NotEqual(t, base.Salt(), hurried.Salt())

	assert.Equal(t, base.Salt(), DefaultConfig().Salt())
}

func TestIntegerModeMapsToArithmetic(t *testing.T) {
	assert.Equal(t, contract.ModeTrap, ModeTrap.Arith())
	assert.Equal(t, contract.ModeWrap, ModeWrap.Arith())
}
