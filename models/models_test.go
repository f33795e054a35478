package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user := NewUser("test@example.com", "$2a$12$hash")

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "test@example.com", user.Email)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUser_JSONHidesPasswordHash(t *testing.T) {
	data, err := json.Marshal(NewUser("a@example.com", "secret-hash"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "password")
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := NewSession(uuid.New(), "tok", now, time.Hour)

	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	assert.False(t, session.IsExpired(now))
	assert.False(t, session.IsExpired(now.Add(59*time.Minute)))
	assert.True(t, session.IsExpired(now.Add(time.Hour)))
	assert.True(t, session.IsExpired(now.Add(2*time.Hour)))
}

func TestConnection_JSONHidesCredentials(t *testing.T) {
	conn := NewConnection(uuid.New(), "prod", json.RawMessage(`{"private_key":"pk"}`))

	data, err := json.Marshal(conn)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "private_key")
	assert.Contains(t, string(data), `"connection_name":"prod"`)
}

type optionalProbe struct {
	Description Optional[*string] `json:"description"`
}

func TestOptional_UnmarshalDistinguishesPresence(t *testing.T) {
	t.Run("key omitted", func(t *testing.T) {
		var p optionalProbe
		require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
		assert.False(t, p.Description.Set)
		assert.Nil(t, p.Description.Value)
	})

	t.Run("key present with null", func(t *testing.T) {
		var p optionalProbe
		require.NoError(t, json.Unmarshal([]byte(`{"description":null}`), &p))
		assert.True(t, p.Description.Set)
		assert.Nil(t, p.Description.Value)
	})

	t.Run("key present with empty string", func(t *testing.T) {
		var p optionalProbe
		require.NoError(t, json.Unmarshal([]byte(`{"description":""}`), &p))
		assert.True(t, p.Description.Set)
		require.NotNil(t, p.Description.Value)
		assert.Equal(t, "", *p.Description.Value)
	})

	t.Run("key present with value", func(t *testing.T) {
		var p optionalProbe
		require.NoError(t, json.Unmarshal([]byte(`{"description":"orders"}`), &p))
		assert.True(t, p.Description.Set)
		require.NotNil(t, p.Description.Value)
		assert.Equal(t, "orders", *p.Description.Value)
	})

	t.Run("wrong type is an error", func(t *testing.T) {
		var p optionalProbe
		assert.Error(t, json.Unmarshal([]byte(`{"description":42}`), &p))
	})
}

func TestOptional_Marshal(t *testing.T) {
	data, err := json.Marshal(Optional[string]{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(Some("x"))
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(data))
}

func TestGigabytesFromBytes(t *testing.T) {
	assert.Equal(t, 1.0, GigabytesFromBytes(1<<30))
	assert.Equal(t, 0.5, GigabytesFromBytes(1<<29))
	assert.Equal(t, 0.0, GigabytesFromBytes(0))
}
