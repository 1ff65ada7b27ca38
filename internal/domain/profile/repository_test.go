package profile

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func profileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "username", "first_name", "last_name", "avatar_url", "city", "created_at"})
}

func TestRepositoryGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(profileRows().AddRow(id.String(), userID.String(), "jane", "Jane", "Doe", nil, "Almaty", time.Now()))

	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Jane Doe", p.DisplayName())
	assert.False(t, p.AvatarURL.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(profileRows())

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRepositoryWrapsDriverErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE user_id = $1")).
		WithArgs(userID).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetByUserID(context.Background(), userID)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestRepositoryGetByUsernameIsCaseInsensitive(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(username) = LOWER($1)")).
		WithArgs("Jane").
		WillReturnRows(profileRows().AddRow(id.String(), uuid.NewString(), "jane", nil, nil, nil, nil, time.Now()))

	p, err := repo.GetByUsername(context.Background(), " Jane ")
	require.NoError(t, err)
	assert.Equal(t, "jane", p.DisplayName())
}

func TestRepositoryGetByIDsSkipsMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(profileRows().AddRow(a.String(), uuid.NewString(), "a", nil, nil, "https://cdn/a.png", nil, time.Now()))

	got, err := repo.GetByIDs(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn/a.png", *SummaryFromEntity(got[a]).AvatarURL)
	assert.Nil(t, got[b])
}

func TestRepositoryGetByIDsEmpty(t *testing.T) {
	repo, _ := newMockRepo(t)

	got, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
