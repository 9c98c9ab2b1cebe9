package migration

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/itdd/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add merge reviews", "add_merge_reviews"},
		{"Add-Merge-Reviews", "add_merge_reviews"},
		{"ADD__REVIEW__INDEX", "add_review_index"},
		{"Backfill cost 2026", "backfill_cost_2026"},
		{"   spaces   ", "spaces"},
		{"vendor/version!", "vendor_version"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add review index", "Speeds up pending review listing")
	require.NoError(t, err)
	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_review_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_review_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- 000001 add_review_index\n")
	assert.Contains(t, string(up), "Speeds up pending review listing")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(rollback)")

	t.Run("numbers past the highest existing version", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_backfill.up.sql"), []byte("--"), 0o644))

		next, err := CreateMigration(dir, "drop legacy column", "")
		require.NoError(t, err)
		assert.Equal(t, "000008", next.Version)

		body, err := os.ReadFile(next.UpPath)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "-- \n")
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "")
		assert.Error(t, err)
	})
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "init", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{
		"000002_add_reviews.up.sql",
		"000002_add_reviews.down.sql",
		"000001_init.up.sql",
		"000001_init.down.sql",
		"README.md",
		".up.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

	names, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_add_reviews"}, names)

	names, err = ListMigrations(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^(\d{6}_[a-z0-9_]+)\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		require.NotNil(t, m, "unexpected file %s", e.Name())
		if m[2] == "up" {
			ups[m[1]] = true
		} else {
			downs[m[1]] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
