package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		ok       bool
		version  int
		name     string
	}{
		{"0001_create_ml_feedback.sql", true, 1, "create_ml_feedback"},
		{"0042_add_accuracy_view.sql", true, 42, "add_accuracy_view"},
		{"001_short_version.sql", false, 0, ""},
		{"0001_missing_extension", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"notes.txt", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.version, version)
				assert.Equal(t, tt.name, name)
			}
		})
	}
}

func TestRenderSQL_SubstitutesPlaceholders(t *testing.T) {
	sql := renderSQL(
		[]byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.ml_feedback` (id STRING)"),
		"finance-prod", "transactions",
	)
	assert.Equal(t, "CREATE TABLE `finance-prod.transactions.ml_feedback` (id STRING)", sql)
}

func TestFileChecksum_IgnoresRenderTarget(t *testing.T) {
	content := []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.ml_feedback` (id STRING)")

	// The checksum covers the raw file, so the same migration applied to
	// two environments records the same checksum.
	sum := fileChecksum(content)
	assert.Equal(t, sum, fileChecksum(content))
	assert.NotEqual(t, sum, fileChecksum([]byte("CREATE TABLE other (id STRING)")))
	assert.NotContains(t, renderSQL(content, "p", "d"), "{{PROJECT_ID}}")
}

func TestLoadMigrations_SortsAndRenders(t *testing.T) {
	dir := t.TempDir()
	write := func(name, sql string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
	}
	write("0002_add_view.sql", "CREATE VIEW `{{PROJECT_ID}}.{{DATASET_ID}}.v` AS SELECT 1")
	write("0001_create_table.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id STRING)")
	write("README.md", "not a migration")

	migrations, err := loadMigrations(dir, "finance-prod", "transactions")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_table", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "`finance-prod.transactions.t`")
	assert.Equal(t, 2, migrations[1].Version)
	assert.NotEmpty(t, migrations[1].Checksum)
}

func TestLoadMigrations_MissingDirectory(t *testing.T) {
	_, err := loadMigrations(filepath.Join(t.TempDir(), "absent"), "p", "d")
	require.Error(t, err)
}
