package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/demoody/missed-call-responder/internal/model"
)

func TestPostgresRepo_IsNumberBlocked(t *testing.T) {
	selectQuery := `SELECT * FROM "blocked_numbers" WHERE phone_number = $1 ORDER BY "blocked_numbers"."id" LIMIT $2`

	t.Run("Blocked", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		rows := sqlmock.NewRows([]string{"id", "phone_number", "reason", "blocked_at"}).
			AddRow(1, "919876543210", "SPAM", time.Now().UTC())
		mock.ExpectQuery(selectQuery).
			WithArgs("919876543210", 1).
			WillReturnRows(rows)

		blocked, err := repo.IsNumberBlocked(context.Background(), "919876543210")
		assert.NoError(t, err)
		assert.True(t, blocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Blocked", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectQuery(selectQuery).
			WithArgs("919876543211", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		blocked, err := repo.IsNumberBlocked(context.Background(), "919876543211")
		assert.NoError(t, err)
		assert.False(t, blocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_BlockNumber_Upsert(t *testing.T) {
	repo, mock := newTestRepo(t)
	at := time.Now().UTC()

	insertQuery := `INSERT INTO "blocked_numbers" ("phone_number","reason","blocked_at") VALUES ($1,$2,$3) ON CONFLICT ("phone_number") DO UPDATE SET "reason"="excluded"."reason","blocked_at"="excluded"."blocked_at" RETURNING "id"`
	mock.ExpectQuery(insertQuery).
		WithArgs("919876543210", model.BlockReasonOptOut, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := repo.BlockNumber(context.Background(), "919876543210", model.BlockReasonOptOut, at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UnblockNumber(t *testing.T) {
	deleteQuery := `DELETE FROM "blocked_numbers" WHERE phone_number = $1`

	t.Run("Existing Entry", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectExec(deleteQuery).
			WithArgs("919876543210").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UnblockNumber(context.Background(), "919876543210")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Number Is NoOp", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectExec(deleteQuery).
			WithArgs("919876543299").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UnblockNumber(context.Background(), "919876543299")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_ListBlockedNumbers(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "phone_number", "reason", "blocked_at"}).
		AddRow(2, "919876543211", model.BlockReasonOptOut, now).
		AddRow(1, "919876543210", "SPAM", now.Add(-time.Hour))
	selectQuery := `SELECT * FROM "blocked_numbers" ORDER BY blocked_at DESC LIMIT $1 OFFSET $2`
	mock.ExpectQuery(selectQuery).
		WithArgs(20, 0).
		WillReturnRows(rows)

	entries, err := repo.ListBlockedNumbers(context.Background(), 20, 0)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "919876543211", entries[0].PhoneNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
