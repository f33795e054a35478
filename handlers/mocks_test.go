package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/sqlpilot/middleware"
	"github.com/upb/sqlpilot/models"
	authsvc "github.com/upb/sqlpilot/services/auth"
	"github.com/upb/sqlpilot/services/generation"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*authsvc.LoginResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authsvc.LoginResult), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockConnectionService is a mock implementation of ConnectionService
type MockConnectionService struct {
	mock.Mock
}

func (m *MockConnectionService) Register(ctx context.Context, userID uuid.UUID, name string, payload json.RawMessage) (uuid.UUID, error) {
	args := m.Called(ctx, userID, name, payload)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockConnectionService) List(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Connection), args.Error(1)
}

func (m *MockConnectionService) Get(ctx context.Context, userID, connectionID uuid.UUID) (*models.Connection, error) {
	args := m.Called(ctx, userID, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockConnectionService) Delete(ctx context.Context, userID, connectionID uuid.UUID) error {
	args := m.Called(ctx, userID, connectionID)
	return args.Error(0)
}

func (m *MockConnectionService) Test(ctx context.Context, userID, connectionID uuid.UUID) error {
	args := m.Called(ctx, userID, connectionID)
	return args.Error(0)
}

// MockMetadataService is a mock implementation of MetadataService
type MockMetadataService struct {
	mock.Mock
}

func (m *MockMetadataService) UpsertObjectMetadata(ctx context.Context, req models.ObjectUpsert) (uuid.UUID, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockMetadataService) ListObjectsWithFields(ctx context.Context, userID uuid.UUID) ([]*models.ObjectWithFields, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ObjectWithFields), args.Error(1)
}

// MockAssembler is a mock implementation of ContextAssembler
type MockAssembler struct {
	mock.Mock
}

func (m *MockAssembler) AssembleContext(ctx context.Context, userID, connectionID uuid.UUID, names []string) ([]models.ObjectContext, error) {
	args := m.Called(ctx, userID, connectionID, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ObjectContext), args.Error(1)
}

// MockWarehouseService is a mock implementation of WarehouseService
type MockWarehouseService struct {
	mock.Mock
}

func (m *MockWarehouseService) FetchSchema(ctx context.Context, userID, connectionID uuid.UUID, qualifiedName string) ([]models.FieldDescriptor, error) {
	args := m.Called(ctx, userID, connectionID, qualifiedName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FieldDescriptor), args.Error(1)
}

func (m *MockWarehouseService) DryRun(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.DryRunResult, error) {
	args := m.Called(ctx, userID, connectionID, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DryRunResult), args.Error(1)
}

func (m *MockWarehouseService) Execute(ctx context.Context, userID, connectionID uuid.UUID, sql string) (*models.QueryResult, error) {
	args := m.Called(ctx, userID, connectionID, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryResult), args.Error(1)
}

// MockGenerator is a mock implementation of QueryGenerator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, request string, contexts []models.ObjectContext) (*generation.Result, error) {
	args := m.Called(ctx, request, contexts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.Result), args.Error(1)
}

// authedRequest builds a request carrying a principal, as RequireAuth would
func authedRequest(t *testing.T, method, target string, body interface{}, userID uuid.UUID) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	ctx := middleware.WithPrincipal(req.Context(), &models.Principal{
		UserID:    userID,
		Email:     "analyst@example.com",
		SessionID: uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	ctx = middleware.WithToken(ctx, "token-"+userID.String())
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}
