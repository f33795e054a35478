package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func strPtr(s string) *string { return &s }

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		id := uuid.New()
		created := time.Now().UTC()

		mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
			WithArgs("a@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
				AddRow(id.String(), "a@example.com", "$2a$hash", created))

		user, err := repo.GetByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "$2a$hash", user.PasswordHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

		user, err := repo.GetByEmail(ctx, "nobody@example.com")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	user := models.NewUser("a@example.com", "hash")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(user.ID, user.Email, user.PasswordHash, user.CreatedAt).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), user)
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create and get by token", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())
		session := models.NewSession(uuid.New(), "tok", now, time.Hour)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
			WithArgs(session.ID, session.UserID, "tok", now, now.Add(time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
			WithArgs("tok").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "created_at", "expires_at"}).
				AddRow(session.ID.String(), session.UserID.String(), "tok", now, now.Add(time.Hour)))

		require.NoError(t, repo.Create(ctx, session))
		got, err := repo.GetByToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, session.UserID, got.UserID)
		assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoked token is not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "created_at", "expires_at"}))

		_, err := repo.GetByToken(ctx, "gone")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("deletes report affected rows", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())
		userID := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token = $1")).
			WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).
			WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= $1")).
			WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.DeleteByToken(ctx, "tok")
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.DeleteByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnectionRepository(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("create duplicate name", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepository(db, zap.NewNop())
		conn := models.NewConnection(userID, "prod", []byte(`{"type":"service_account"}`))

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO connections")).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "connections_user_id_name_key"})

		err := repo.Create(ctx, conn)
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
	})

	t.Run("exists by name", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(userID, "prod").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ExistsByName(ctx, userID, "prod")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("get filters by owner", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepository(db, zap.NewNop())
		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2")).
			WithArgs(id, userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "credentials", "created_at"}).
				AddRow(id.String(), userID.String(), "prod", []byte(`{"a":1}`), time.Now()))

		conn, err := repo.GetForUser(ctx, userID, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(conn.Credentials))
	})

	t.Run("delete of foreign connection is not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepository(db, zap.NewNop())
		id := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM connections WHERE id = $1 AND user_id = $2")).
			WithArgs(id, userID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteForUser(ctx, userID, id)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewConnectionRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY name")).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}).
				AddRow(uuid.NewString(), userID.String(), "a", time.Now()).
				AddRow(uuid.NewString(), userID.String(), "b", time.Now()))

		conns, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, conns, 2)
		assert.Equal(t, "a", conns[0].Name)
		assert.Empty(t, conns[0].Credentials)
	})
}

func TestMetadataRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	userID, connID, objectID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	db, mock := newMockDB(t)
	repo := NewMetadataRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id, connection_id, object_name)")).
		WithArgs(sqlmock.AnyArg(), userID, connID, "sales.orders", nil, now, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(objectID.String()))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (object_id, field_name)")).
		WithArgs(sqlmock.AnyArg(), objectID, "total", "F2", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	id, err := repo.UpsertObject(ctx, userID, connID, "sales.orders", nil, false, now)
	require.NoError(t, err)
	assert.Equal(t, objectID, id)

	_, err = repo.UpsertField(ctx, objectID, "total", strPtr("F2"), true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataRepository_List(t *testing.T) {
	ctx := context.Background()
	userID, connID := uuid.New(), uuid.New()
	orders, customers := uuid.New(), uuid.New()
	columns := []string{"id", "connection_id", "object_name", "description", "field_name", "field_description"}

	t.Run("groups fields under objects", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMetadataRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("WHERE o.user_id = $1")).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(customers.String(), connID.String(), "sales.customers", "", nil, "").
				AddRow(orders.String(), connID.String(), "sales.orders", "D1", "id", "").
				AddRow(orders.String(), connID.String(), "sales.orders", "D1", "total", "F1"))

		objects, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, objects, 2)

		assert.Equal(t, "sales.customers", objects[0].Name)
		assert.NotNil(t, objects[0].Fields)
		assert.Empty(t, objects[0].Fields)

		assert.Equal(t, "D1", objects[1].Description)
		assert.Equal(t, []models.FieldSummary{
			{Name: "id", Description: ""},
			{Name: "total", Description: "F1"},
		}, objects[1].Fields)
	})

	t.Run("filter by names uses array parameter", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMetadataRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("o.object_name = ANY($3)")).
			WithArgs(userID, connID, pq.Array([]string{"sales.orders"})).
			WillReturnRows(sqlmock.NewRows(columns))

		objects, err := repo.ListByConnection(ctx, userID, connID, []string{"sales.orders"})
		require.NoError(t, err)
		assert.Empty(t, objects)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no names lists the whole connection", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMetadataRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("o.connection_id = $2")).
			WithArgs(userID, connID).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(orders.String(), connID.String(), "sales.orders", "", nil, ""))

		objects, err := repo.ListByConnection(ctx, userID, connID, nil)
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionManager_InTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("repositories see the transaction and commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewConnectionRepository(db, zap.NewNop())
		userID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO connections")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			_, ok := GetTransactionFromContext(ctx)
			assert.True(t, ok)
			if _, err := repo.ExistsByName(ctx, userID, "c1"); err != nil {
				return err
			}
			return repo.Create(ctx, models.NewConnection(userID, "c1", []byte(`{}`)))
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		db, mock := newMockDB(t)
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
				panic("kaboom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS sessions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
