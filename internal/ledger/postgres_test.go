package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

func TestPostgresLedger_HasDownloaded(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock pgxmock.PgxPoolIface)
		want     bool
		wantCode string
	}{
		{
			name: "entry exists",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM ledger_entries WHERE item_id = \\$1\\)").
					WithArgs("vid1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
			},
			want: true,
		},
		{
			name: "entry missing",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs("vid1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
			},
			want: false,
		},
		{
			name: "connection failure",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs("vid1").
					WillReturnError(&pgconn.PgError{Code: "08006"})
			},
			wantCode: apperrors.CodeLedgerWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setup(mock)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			got, err := NewPostgresLedger(mock).HasDownloaded(ctx, "vid1")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "pgxmock expectations were not met")
		})
	}
}

func TestPostgresLedger_RecordDownloaded(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := model.LedgerEntry{ItemID: "vid1", ChannelID: "@a", CompletedAt: at}

	tests := []struct {
		name        string
		entry       model.LedgerEntry
		setup       func(mock pgxmock.PgxPoolIface)
		wantCreated bool
		wantCode    string
	}{
		{
			name:  "new entry",
			entry: entry,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO ledger_entries").
					WithArgs("vid1", "@a", at).
					WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
			},
			wantCreated: true,
		},
		{
			name:  "existing entry overwritten",
			entry: entry,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("(?s)INSERT INTO ledger_entries.*ON CONFLICT \\(item_id\\) DO UPDATE SET completed_at").
					WithArgs("vid1", "@a", at).
					WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
			},
			wantCreated: false,
		},
		{
			name:  "zero timestamp filled in",
			entry: model.LedgerEntry{ItemID: "vid2", ChannelID: "@a"},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO ledger_entries").
					WithArgs("vid2", "@a", pgxmock.AnyArg()).
					WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
			},
			wantCreated: true,
		},
		{
			name:  "missing table",
			entry: entry,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO ledger_entries").
					WithArgs("vid1", "@a", at).
					WillReturnError(&pgconn.PgError{Code: "42P01"})
			},
			wantCode: apperrors.CodeLedgerWrite,
		},
		{
			name:     "missing item ID",
			entry:    model.LedgerEntry{ChannelID: "@a", CompletedAt: at},
			setup:    func(mock pgxmock.PgxPoolIface) {},
			wantCode: apperrors.CodeLedgerWrite,
		},
		{
			name:  "generic error",
			entry: entry,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("INSERT INTO ledger_entries").
					WithArgs("vid1", "@a", at).
					WillReturnError(assert.AnError)
			},
			wantCode: apperrors.CodeLedgerWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setup(mock)

			created, err := NewPostgresLedger(mock).RecordDownloaded(context.Background(), tt.entry)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCreated, created)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "pgxmock expectations were not met")
		})
	}
}

func TestPostgresLedger_Entries(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"item_id", "channel_id", "completed_at"}).
		AddRow("vid1", "@a", at).
		AddRow("vid2", "@a", at.Add(time.Minute))
	mock.ExpectQuery("SELECT item_id, channel_id, completed_at FROM ledger_entries").
		WithArgs("@a").
		WillReturnRows(rows)

	entries, err := NewPostgresLedger(mock).Entries(context.Background(), "@a")
	require.NoError(t, err)
	assert.Equal(t, []model.LedgerEntry{
		{ItemID: "vid1", ChannelID: "@a", CompletedAt: at},
		{ItemID: "vid2", ChannelID: "@a", CompletedAt: at.Add(time.Minute)},
	}, entries)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_EntriesQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT item_id").WithArgs("").WillReturnError(assert.AnError)

	_, err = NewPostgresLedger(mock).Entries(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLedgerWrite, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlePostgreSQLError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{"nil error", nil, "", ""},
		{"non postgres error", assert.AnError, apperrors.CodeInternal, "record"},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_pkey"}, apperrors.CodeConflict, "ledger entry for this item already exists"},
		{"not null violation", &pgconn.PgError{Code: "23502"}, apperrors.CodeInvalidArg, "required field is missing"},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, apperrors.CodeConfiguration, "ledger migrate"},
		{"connection lost", &pgconn.PgError{Code: "08006"}, apperrors.CodeTransientNetwork, "database connection error"},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, apperrors.CodeTransientNetwork, "database connection error"},
		{"too many connections", &pgconn.PgError{Code: "53300"}, apperrors.CodeTransientNetwork, "connection limit"},
		{"unknown code", &pgconn.PgError{Code: "XX000"}, apperrors.CodeInternal, "XX000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := handlePostgreSQLError(tt.err, "record")
			if tt.err == nil {
				assert.Nil(t, appErr)
				return
			}
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantMsg)
			assert.True(t, errors.Is(appErr, tt.err))
		})
	}
}

func TestPostgresLedger_WrapsCauseCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").WithArgs("vid1").WillReturnError(&pgconn.PgError{Code: "08006"})

	_, err = NewPostgresLedger(mock).HasDownloaded(context.Background(), "vid1")
	require.Error(t, err)

	var outer *apperrors.AppError
	require.ErrorAs(t, err, &outer)
	assert.Equal(t, apperrors.CodeLedgerWrite, outer.Code)
	assert.Equal(t, apperrors.CodeTransientNetwork, apperrors.CodeOf(outer.Cause))
}
