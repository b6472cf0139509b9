package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8, cfg.Import.Workers)
	assert.Equal(t, 10, cfg.Import.ErrorSummaryLimit)
	assert.Equal(t, 30*time.Minute, cfg.Import.StuckAfter)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  host: db.internal
  port: 6543
  tenant_dbname_format: "tenant_%s"
import:
  workers: 3
  stuck_after: 10m
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Setenv("LEDGERFLOW_DATABASE_PASSWORD", "s3cret")
	t.Setenv("LEDGERFLOW_IMPORT_CHUNK_SIZE", "50")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "tenant_%s", cfg.Database.TenantDBNameFormat)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 3, cfg.Import.Workers)
	assert.Equal(t, 50, cfg.Import.ChunkSize)
	assert.Equal(t, 10*time.Minute, cfg.Import.StuckAfter)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate_RejectsBadTenantFormat(t *testing.T) {
	cfg := Default()
	cfg.Database.TenantDBNameFormat = "tenant_db"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Import.Workers = 0
	assert.Error(t, cfg.Validate())
}
