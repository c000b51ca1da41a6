package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

func TestQualificationPolicyExcluded(t *testing.T) {
	p := NewQualificationPolicy([]string{"24600"})

	assert.True(t, p.Excluded("24600"))
	assert.False(t, p.Excluded("10000"))
}

func TestLoadExclusionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclusions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("excluded_job_codes: [\"24600\", \"31000\"]\n"), 0o600))

	p := NewQualificationPolicy([]string{"99999"})
	require.NoError(t, p.LoadExclusionFile(path))

	assert.True(t, p.Excluded("24600"))
	assert.True(t, p.Excluded("31000"))
	assert.False(t, p.Excluded("99999"))
}

func TestLoadExclusionFileEmptyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclusions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("excluded_job_codes: []\n"), 0o600))

	p := NewQualificationPolicy([]string{"24600"})
	assert.Error(t, p.LoadExclusionFile(path))
	// Previous set survives a bad load
	assert.True(t, p.Excluded("24600"))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclusions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("excluded_job_codes: [\"24600\"]\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewQualificationPolicy(nil)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	require.NoError(t, p.Watch(ctx, path, logger))
	assert.True(t, p.Excluded("24600"))

	require.NoError(t, os.WriteFile(path, []byte("excluded_job_codes: [\"31000\"]\n"), 0o600))

	assert.Eventually(t, func() bool {
		return p.Excluded("31000") && !p.Excluded("24600")
	}, 3*time.Second, 25*time.Millisecond)
}
