package config

import (
	"path/filepath"
	"testing"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidateRejectsOutOfRangeRetention(t *testing.T) {
	cfg := Default()
	cfg.RetentionDays = 0
	err := Validate(cfg)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindConfigInvalid, ae.Kind)
}

func TestValidateRejectsBadResolution(t *testing.T) {
	cfg := Default()
	cfg.CaptureSettings.Resolution = "8k"
	require.Error(t, Validate(cfg))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.RetentionDays = 14
	cfg.LLMProvider = "anthropic"
	cfg.LLMConfig = map[string]any{"model": "claude-3"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.RetentionDays, loaded.RetentionDays)
	assert.Equal(t, cfg.LLMProvider, loaded.LLMProvider)
	assert.Equal(t, "claude-3", loaded.LLMConfig["model"])
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestManagerApplyRejectsInvalidAndKeepsDiskUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Apply(Default()))

	before, err := Load(path)
	require.NoError(t, err)

	bad := Default()
	bad.RetentionDays = 0
	err = mgr.Apply(bad)
	require.Error(t, err)

	after, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, Default().RetentionDays, mgr.Current().RetentionDays)
}

func TestManagerApplyIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	cfg := Default()
	cfg.RetentionDays = 10
	require.NoError(t, mgr.Apply(cfg))
	first := mgr.Current()
	require.NoError(t, mgr.Apply(cfg))
	second := mgr.Current()
	assert.Equal(t, first, second)
}

func TestManagerNotifiesSubscribersLatestWins(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	ch := mgr.Subscribe()

	first := Default()
	first.RetentionDays = 3
	require.NoError(t, mgr.Apply(first))

	second := Default()
	second.RetentionDays = 9
	require.NoError(t, mgr.Apply(second))

	got := <-ch
	assert.Equal(t, 9, got.RetentionDays)
}
