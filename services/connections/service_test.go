package connections

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/sqlpilot/models"
	"github.com/upb/sqlpilot/repositories"
	"github.com/upb/sqlpilot/services"
	"go.uber.org/zap"
)

// memConnections enforces (user_id, name) uniqueness like the database does
type memConnections struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Connection
}

func newMemConnections() *memConnections {
	return &memConnections{rows: make(map[uuid.UUID]*models.Connection)}
}

func (m *memConnections) Create(_ context.Context, conn *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.UserID == conn.UserID && c.Name == conn.Name {
			return repositories.ErrDuplicate
		}
	}
	cp := *conn
	m.rows[conn.ID] = &cp
	return nil
}

func (m *memConnections) ExistsByName(_ context.Context, userID uuid.UUID, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.UserID == userID && c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memConnections) GetForUser(_ context.Context, userID, id uuid.UUID) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConnections) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Connection, 0)
	for _, c := range m.rows {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memConnections) DeleteForUser(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// passthroughTx runs fn directly
type passthroughTx struct{}

func (passthroughTx) Begin(context.Context) (repositories.Transaction, error) {
	return nil, errors.New("not supported")
}

func (passthroughTx) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, nil)
}

// MockTester is a mock implementation of Tester
type MockTester struct {
	mock.Mock
}

func (m *MockTester) TestConnection(ctx context.Context, userID, connectionID uuid.UUID) error {
	return m.Called(ctx, userID, connectionID).Error(0)
}

var key = json.RawMessage(`{"type":"service_account","project_id":"acme"}`)

func newService(repo repositories.ConnectionRepository) *Service {
	return NewService(repo, passthroughTx{}, new(MockTester), zap.NewNop())
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates connection", func(t *testing.T) {
		repo := newMemConnections()
		svc := newService(repo)

		id, err := svc.Register(ctx, userID, " prod ", key)
		require.NoError(t, err)

		conn, err := svc.Get(ctx, userID, id)
		require.NoError(t, err)
		assert.Equal(t, "prod", conn.Name)
		assert.JSONEq(t, string(key), string(conn.Credentials))
	})

	t.Run("same name for same user conflicts", func(t *testing.T) {
		svc := newService(newMemConnections())

		_, err := svc.Register(ctx, userID, "prod", key)
		require.NoError(t, err)
		_, err = svc.Register(ctx, userID, "prod", key)
		assert.ErrorIs(t, err, services.ErrNameConflict)
		assert.True(t, services.IsConflictError(err))
	})

	t.Run("same name for different users is allowed", func(t *testing.T) {
		svc := newService(newMemConnections())

		_, err := svc.Register(ctx, userID, "prod", key)
		require.NoError(t, err)
		_, err = svc.Register(ctx, uuid.New(), "prod", key)
		assert.NoError(t, err)
	})

	t.Run("name length counts characters", func(t *testing.T) {
		svc := newService(newMemConnections())
		name := strings.Repeat("é", 60)

		_, err := svc.Register(ctx, userID, name, key)
		require.NoError(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		svc := newService(newMemConnections())
		long := strings.Repeat("a", MaxNameLength+1)

		tests := []struct {
			name     string
			connName string
			payload  string
			target   error
		}{
			{name: "empty name", connName: "  ", payload: string(key)},
			{name: "long name", connName: long, payload: string(key)},
			{name: "long multibyte name", connName: strings.Repeat("é", MaxNameLength+1), payload: string(key)},
			{name: "array payload", connName: "x", payload: `[1]`, target: services.ErrInvalidCredentialPayload},
			{name: "string payload", connName: "x", payload: `"key"`, target: services.ErrInvalidCredentialPayload},
			{name: "empty object", connName: "x", payload: `{}`, target: services.ErrInvalidCredentialPayload},
			{name: "broken json", connName: "x", payload: `{"a":`, target: services.ErrInvalidCredentialPayload},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Register(ctx, userID, tt.connName, json.RawMessage(tt.payload))
				assert.True(t, services.IsValidationError(err))
				if tt.target != nil {
					assert.ErrorIs(t, err, tt.target)
				}
			})
		}
	})
}

func TestService_Register_ConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemConnections())
	userID := uuid.New()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Register(ctx, userID, "c1", key)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrNameConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Delete_CrossUser(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemConnections())
	userA, userB := uuid.New(), uuid.New()

	id, err := svc.Register(ctx, userA, "c1", key)
	require.NoError(t, err)

	err = svc.Delete(ctx, userB, id)
	assert.ErrorIs(t, err, services.ErrNotFoundOrForbidden)

	missing := svc.Delete(ctx, userB, uuid.New())
	assert.Equal(t, services.GetErrorType(err), services.GetErrorType(missing))
	assert.Equal(t, services.GetErrorCode(err), services.GetErrorCode(missing))

	_, err = svc.Get(ctx, userA, id)
	require.NoError(t, err, "connection must survive the foreign delete")

	require.NoError(t, svc.Delete(ctx, userA, id))
	_, err = svc.Get(ctx, userA, id)
	assert.ErrorIs(t, err, services.ErrNotFoundOrForbidden)
}

func TestService_StorageFailureIsInternal(t *testing.T) {
	repo := new(MockConnectionRepository)
	svc := newService(repo)
	userID := uuid.New()
	repo.On("ExistsByName", mock.Anything, userID, "prod").Return(false, errors.New("connection refused"))
	repo.On("ListByUser", mock.Anything, userID).Return([]*models.Connection(nil), errors.New("connection refused"))

	_, err := svc.Register(context.Background(), userID, "prod", key)
	assert.True(t, services.IsInternalError(err))

	_, err = svc.List(context.Background(), userID)
	assert.True(t, services.IsInternalError(err))
}

func TestService_Test(t *testing.T) {
	tester := new(MockTester)
	svc := NewService(newMemConnections(), passthroughTx{}, tester, zap.NewNop())
	userID, connID := uuid.New(), uuid.New()
	tester.On("TestConnection", mock.Anything, userID, connID).Return(services.ErrUpstream)

	err := svc.Test(context.Background(), userID, connID)
	assert.ErrorIs(t, err, services.ErrUpstream)
	tester.AssertExpectations(t)
}

// MockConnectionRepository is a mock implementation of repositories.ConnectionRepository
type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	return m.Called(ctx, conn).Error(0)
}

func (m *MockConnectionRepository) ExistsByName(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	args := m.Called(ctx, userID, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockConnectionRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Connection, error) {
	args := m.Called(ctx, userID, id)
	if c := args.Get(0); c != nil {
		return c.(*models.Connection), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConnectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*models.Connection), args.Error(1)
}

func (m *MockConnectionRepository) DeleteForUser(ctx context.Context, userID, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}
