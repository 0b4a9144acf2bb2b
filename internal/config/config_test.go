package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no stray .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.CreateListCost)
	assert.Equal(t, 2, cfg.AddMemberCost)
	assert.Equal(t, int64(10), cfg.CreditPriceCents)
	assert.False(t, cfg.ChargeDuplicateMembers)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Empty(t, cfg.SeedSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9999")
	t.Setenv("ADD_MEMBER_COST", "5")
	t.Setenv("CHARGE_DUPLICATE_MEMBERS", "true")
	t.Setenv("FRONTEND_ORIGIN", "https://app.example.com/")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 5, cfg.AddMemberCost)
	assert.True(t, cfg.ChargeDuplicateMembers)
	assert.Equal(t, "https://app.example.com", cfg.FrontendOrigin)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_NAME", "")
	os.Unsetenv("APP_NAME")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_NAME=FromDotEnv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("APP_NAME") })

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "FromDotEnv", cfg.AppName)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "leadvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CREATE_LIST_COST: 25\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.CreateListCost)
}

func TestValidate_RejectsNonPositiveCosts(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CREATE_LIST_COST", "0")

	_, err := Load(NewViper())
	require.Error(t, err)
}
