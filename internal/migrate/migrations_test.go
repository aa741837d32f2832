package migrate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/db"
	"collabhub/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := migrate.Migrate(conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = migrate.Migrate(conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, table := range []string{"organizations", "users", "user_orgs", "projects", "tasks", "commitments", "observations", "events"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}
