package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

const spectraPage = `[avUSDAvantMax APY18.41%Interest-Bearing TokenavUSDxLiquidity$2,687,173ExpiryMay 15 2026avUSD - AvantavUSDx](https://app.spectra.finance/pools/avax:0xe9fcba5ad0065ae158d57718ce8f1647f5417688)
`

func TestParseSpectraFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectra.md")
	require.NoError(t, os.WriteFile(path, []byte(spectraPage), 0o600))

	out, err := run(t, "", "parse", "spectra", path)
	require.NoError(t, err)
	assert.Contains(t, out, "avUSD (Avant)")
	assert.Contains(t, out, "18.41%")
	assert.Contains(t, out, "$2.7M")
	assert.Contains(t, out, "2026-05-15")
	assert.Contains(t, out, "0xe9fcba5ad0065ae158d57718ce8f1647f5417688")
}

func TestParseRateXYieldStdin(t *testing.T) {
	out, err := run(t, "xSOL-2604\nImplied Yield\n12.5%\nReal Yield: 8%\n", "parse", "ratex-yield", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "12.50%")
	assert.Contains(t, out, "8.00%")
}

func TestParseRateXYieldMissing(t *testing.T) {
	out, err := run(t, "loading...", "parse", "ratex-yield", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "-")
	assert.NotContains(t, out, "%")
}

func TestParseMissingFile(t *testing.T) {
	_, err := run(t, "", "parse", "exponent", filepath.Join(t.TempDir(), "absent.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.md")
}

func TestParseRequiresFile(t *testing.T) {
	_, err := run(t, "", "parse", "spectra")
	assert.Error(t, err)
}

func setRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("INFISICAL_CLIENT_ID", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	return mr
}

func TestDedupHoldCheckClear(t *testing.T) {
	mr := setRedis(t)
	key := "alert:yield_divergence:pool-1"

	out, err := run(t, "", "dedup", "check", key)
	require.NoError(t, err)
	assert.Contains(t, out, key+": closed")

	_, err = run(t, "", "dedup", "hold", key, "--ttl", "1h")
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, "1h0m0s", mr.TTL(key).String())

	out, err = run(t, "", "dedup", "check", key)
	require.NoError(t, err)
	assert.Contains(t, out, key+": open")

	require.NoError(t, mr.Set("other:key", "x"))
	out, err = run(t, "", "dedup", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, `removed 1 windows matching "alert:*"`)
	assert.False(t, mr.Exists(key))
	assert.True(t, mr.Exists("other:key"))
}

func TestDedupRequiresRedis(t *testing.T) {
	t.Setenv("INFISICAL_CLIENT_ID", "")
	t.Setenv("REDIS_URL", "")

	_, err := run(t, "", "dedup", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}
