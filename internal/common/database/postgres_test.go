package database

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresClient_PingAndMigrate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	client := NewPostgresFromDB(db)
	mock.ExpectPing()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Migrate(context.Background()))
	require.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClient_MigrateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tasks`).WillReturnError(stderrors.New("permission denied for schema public"))

	err = NewPostgresFromDB(db).Migrate(context.Background())
	assert.ErrorContains(t, err, "failed to apply schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_DeclaresProposalUniqueness(t *testing.T) {
	assert.Contains(t, Schema, "CONSTRAINT proposals_task_proposer_key UNIQUE (task_id, proposer_id)")
}
