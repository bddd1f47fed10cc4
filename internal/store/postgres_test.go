// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/pkg/errutil"
)

func TestPostgresStore_Load(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      Document
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT data, version, updated_at FROM quest_documents`).
					WithArgs(KeyQuestTree).
					WillReturnRows(pgxmock.NewRows([]string{"data", "version", "updated_at"}).
						AddRow([]byte(`{"quests":{}}`), int64(4), updated))
			},
			want: Document{Key: KeyQuestTree, Data: []byte(`{"quests":{}}`), Version: 4, UpdatedAt: updated},
		},
		{
			name: "missing",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT data, version, updated_at FROM quest_documents`).
					WithArgs(KeyQuestTree).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT data, version, updated_at FROM quest_documents`).
					WithArgs(KeyQuestTree).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			got, err := NewPostgresStore(mock).Load(context.Background(), KeyQuestTree)
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case errors.Is(tt.wantErr, ErrNotFound):
				require.ErrorIs(t, err, ErrNotFound)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
				errutil.AssertErrorCode(t, err, "STORE_READ_FAILED")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Save(t *testing.T) {
	data := []byte(`{"defaultPermissions":{}}`)

	tests := []struct {
		name      string
		expected  int64
		setupMock func(mock pgxmock.PgxPoolIface)
		want      int64
		wantErr   error
		wantCode  string
	}{
		{
			name:     "first write inserts",
			expected: 0,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO quest_documents`).
					WithArgs(KeyPermissions, data).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			want: 1,
		},
		{
			name:     "first write loses the race",
			expected: 0,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO quest_documents`).
					WithArgs(KeyPermissions, data).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  ErrVersionConflict,
			wantCode: "VERSION_CONFLICT",
		},
		{
			name:     "update at expected version",
			expected: 3,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE quest_documents SET data`).
					WithArgs(data, KeyPermissions, int64(3)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
			want: 4,
		},
		{
			name:     "stale update",
			expected: 3,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE quest_documents SET data`).
					WithArgs(data, KeyPermissions, int64(3)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr:  ErrVersionConflict,
			wantCode: "VERSION_CONFLICT",
		},
		{
			name:     "unconditional upsert",
			expected: AnyVersion,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`(?s)INSERT INTO quest_documents.*ON CONFLICT`).
					WithArgs(KeyPermissions, data).
					WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(9)))
			},
			want: 9,
		},
		{
			name:     "write failure",
			expected: 2,
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE quest_documents SET data`).
					WithArgs(data, KeyPermissions, int64(2)).
					WillReturnError(errors.New("disk full"))
			},
			wantCode: "STORE_WRITE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			got, err := NewPostgresStore(mock).Save(context.Background(), KeyPermissions, data, tt.expected)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			} else {
				require.Error(t, err)
				if tt.wantErr != nil {
					require.ErrorIs(t, err, tt.wantErr)
				}
				errutil.AssertErrorCode(t, err, tt.wantCode)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM quest_documents`).
		WithArgs(KeyQuestTree).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, NewPostgresStore(mock).Delete(context.Background(), KeyQuestTree))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Nil(t, NewPostgresStore(mock).Pool())
}

func TestPingWithRetry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	require.NoError(t, pingWithRetry(context.Background(), mock, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(errors.New("down"))
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err = pingWithRetry(context.Background(), mock, 1)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_OPEN_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", uint64(2))
}
