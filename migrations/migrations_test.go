package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationName = regexp.MustCompile(`^(\d{6})_[a-z_]+\.(up|down)\.sql$`)

func TestFiles_ArePairedAndNamed(t *testing.T) {
	entries, err := fs.ReadDir(Files(), ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		require.NotNil(t, match, "unexpected migration file name %s", entry.Name())
		if match[2] == "up" {
			ups[match[1]] = true
		} else {
			downs[match[1]] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestFiles_CoverPersistedTables(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(Files(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		content, err := fs.ReadFile(Files(), path)
		if err != nil {
			return err
		}
		all.Write(content)
		return nil
	})
	require.NoError(t, err)

	for _, table := range []string{"document_types", "sequence_counters", "number_logs", "audit_log"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
