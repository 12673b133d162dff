package database

import (
	"path/filepath"
	"testing"

	"github.com/basefi-lab/dca-executor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("creates the sqlite file and runs migrations", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "data", "dca.db")

		db, err := NewDatabase(dsn)
		require.NoError(t, err)
		defer db.Close()

		for _, model := range []interface{}{
			&models.User{},
			&models.Token{},
			&models.Plan{},
			&models.Execution{},
		} {
			assert.True(t, db.DB.Migrator().HasTable(model))
		}
	})

	t.Run("close releases the connection", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "dca.db")

		db, err := NewDatabase(dsn)
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})
}
