package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authflow/internal/database"
)

var userColumns = []string{
	"id", "email", "username", "password_hash", "oauth_id", "email_verified",
	"first_name", "last_name", "picture", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewRepository(database.NewBunDB(sqlDB)), mock
}

func TestCreate_NormalizesEmailAndReturnsRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	now := time.Now()
	hash := "$argon2id$digest"

	mock.ExpectQuery(`(?s)^INSERT INTO "users".*'ada@x\.com'.*RETURNING \*`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "ada@x.com", "ada", hash, nil, false, "Ada", "", "", now, now))

	u, err := repo.Create(context.Background(), &User{ID: id, Email: "  Ada@X.com ", Username: "ada", PasswordHash: &hash, FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.True(t, u.HasPassword())
	assert.False(t, u.HasOAuth())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_MapsUniqueViolations(t *testing.T) {
	cases := map[string]error{
		"users_email_key":    ErrDuplicateEmail,
		"users_username_key": ErrDuplicateUsername,
		"users_oauth_id_key": ErrDuplicateOAuthID,
	}
	for constraint, want := range cases {
		t.Run(constraint, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(`INSERT INTO "users"`).
				WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraint})

			hash := "h"
			_, err := repo.Create(context.Background(), &User{Email: "a@b.co", Username: "a", PasswordHash: &hash})
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestCreate_MapsAuthMethodCheck(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pq.Error{Code: pqCheckViolation, Constraint: "users_auth_method_check"})

	_, err := repo.Create(context.Background(), &User{Email: "a@b.co", Username: "a"})
	assert.ErrorIs(t, err, ErrMissingAuthMethod)
}

func TestCreate_WrapsUnexpectedErrors(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO "users"`).WillReturnError(errors.New("connection reset"))

	hash := "h"
	_, err := repo.Create(context.Background(), &User{Email: "a@b.co", Username: "a", PasswordHash: &hash})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM "users" AS "u" WHERE \(email = 'ghost@x\.com'\)`).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.GetByEmail(context.Background(), "Ghost@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), uuid.New(), "digest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), uuid.New()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkOAuth_DropsUnverifiedPasswordInSameStatement(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`(?s)^UPDATE "users".*password_hash = CASE WHEN email_verified THEN password_hash ELSE NULL END.*email_verified = email_verified OR .*RETURNING \*`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "ada@x.com", "ada", nil, "google-1", true, "Ada", "", "", now, now))

	u, err := repo.LinkOAuth(context.Background(), id, "google-1", Profile{}, true)
	require.NoError(t, err)
	assert.False(t, u.HasPassword())
	assert.True(t, u.HasOAuth())
	assert.True(t, u.EmailVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfile_FillEmptyNeverOverwrites(t *testing.T) {
	existing := Profile{FirstName: "Ada", Picture: ""}
	got := existing.FillEmpty(Profile{FirstName: "Augusta", LastName: "King", Picture: "https://pic"})
	assert.Equal(t, Profile{FirstName: "Ada", LastName: "King", Picture: "https://pic"}, got)
}
