package database

import (
	"path/filepath"
	"testing"

	"github.com/OCAP2/transport/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Sqlite(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.driver", "sqlite")
	viper.Set("db.sqlitePath", filepath.Join(t.TempDir(), "transports.db"))

	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Connect())
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	require.NotNil(t, m.SqlDB)
	require.NoError(t, m.SqlDB.Ping())

	require.NoError(t, m.Setup())
	for _, tbl := range model.DatabaseModels {
		assert.True(t, m.DB.Migrator().HasTable(tbl), "%T", tbl)
	}
}

func TestSetup_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.ErrorIs(t, m.Setup(), ErrNotConnected)
}

func TestClose_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.NoError(t, m.Close())
}

func TestGetSqliteDBStandalone(t *testing.T) {
	db, err := GetSqliteDBStandalone("file:standalone?mode=memory&cache=shared")
	require.NoError(t, err)

	var version int
	require.NoError(t, db.Raw("PRAGMA user_version;").Scan(&version).Error)
	assert.Equal(t, 1, version)
}
