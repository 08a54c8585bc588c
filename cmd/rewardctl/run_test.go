package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallbiznis/creatorpay/internal/export"
	"github.com/smallbiznis/creatorpay/internal/history/csvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const extract = "period,username,group,agent,diamonds,live_hours,live_days,relation_date,status\n" +
	"2025-10,alice,group-a,agent-a,80000,20,10,2025-10-21,non-graduated\n" +
	"2025-10,bob,group-a,agent-a,120000,30,15,2024-01-05,\n" +
	"2025-10,carol,group-a,agent-a,160000,30,15,2024-01-05,\n"

func setup(t *testing.T) (dir string, opts options) {
	t.Helper()
	t.Setenv("METRICS_PUSH_EXPORTER", "")
	t.Setenv("REWARD_POLICY_FILE", "")

	dir = t.TempDir()
	input := filepath.Join(dir, "octobre.csv")
	require.NoError(t, os.WriteFile(input, []byte(extract), 0o644))

	return dir, options{
		historyPath: filepath.Join(dir, "history.csv"),
		outDir:      filepath.Join(dir, "out"),
		formats:     []string{"csv"},
		files:       []string{input},
	}
}

func readHistory(t *testing.T, path string) map[string]bool {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := csvstore.Decode(f)
	require.NoError(t, err)
	out := map[string]bool{}
	for _, e := range entries {
		out[e.CreatorKey] = e.BonusTiersUsed.Has(1)
	}
	return out
}

func TestRun_WritesTablesAndHistory(t *testing.T) {
	dir, opts := setup(t)

	require.NoError(t, run(context.Background(), opts, zap.NewNop()))

	for _, table := range export.Tables {
		data, err := os.ReadFile(filepath.Join(opts.outDir, export.Filename("2025-10", table, export.FormatCSV)))
		require.NoError(t, err, table)
		assert.Greater(t, len(strings.Split(strings.TrimSpace(string(data)), "\n")), 1, table)
	}

	history := readHistory(t, filepath.Join(dir, "history.csv"))
	assert.True(t, history["alice"])
	assert.Equal(t, history, readHistory(t, filepath.Join(opts.outDir, historyPreviewName)))

	// A second run over the same extract pays nothing new.
	require.NoError(t, run(context.Background(), opts, zap.NewNop()))
	assert.Equal(t, history, readHistory(t, filepath.Join(dir, "history.csv")))
}

func TestRun_DryRunLeavesHistory(t *testing.T) {
	dir, opts := setup(t)
	opts.dryRun = true
	opts.formats = []string{"csv", "pdf"}

	require.NoError(t, run(context.Background(), opts, zap.NewNop()))

	_, err := os.Stat(filepath.Join(dir, "history.csv"))
	assert.True(t, os.IsNotExist(err))
	assert.True(t, readHistory(t, filepath.Join(opts.outDir, historyPreviewName))["alice"])

	pdf, err := os.ReadFile(filepath.Join(opts.outDir, export.Filename("2025-10", export.TableCreators, export.FormatPDF)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
}

func TestRun_Errors(t *testing.T) {
	_, opts := setup(t)

	bad := opts
	bad.periodEnd = "someday"
	assert.Error(t, run(context.Background(), bad, zap.NewNop()))

	bad = opts
	bad.formats = []string{"xls"}
	assert.ErrorIs(t, run(context.Background(), bad, zap.NewNop()), export.ErrUnknownFormat)

	bad = opts
	bad.files = []string{filepath.Join(t.TempDir(), "missing.csv")}
	assert.Error(t, run(context.Background(), bad, zap.NewNop()))

	_, err := os.Stat(opts.outDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_OutputFailureKeepsHistory(t *testing.T) {
	dir, opts := setup(t)
	// A regular file where the output directory should be.
	require.NoError(t, os.WriteFile(opts.outDir, []byte("taken"), 0o644))

	require.Error(t, run(context.Background(), opts, zap.NewNop()))
	_, err := os.Stat(filepath.Join(dir, "history.csv"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.Remove(opts.outDir))
	require.NoError(t, run(context.Background(), opts, zap.NewNop()))
	assert.True(t, readHistory(t, filepath.Join(dir, "history.csv"))["alice"])

	entries, err := os.ReadDir(opts.outDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), e.Name())
	}
}
