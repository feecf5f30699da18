package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestAuditLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json").WithComponent("auth")

	log.Audit("alice", "LOGIN_SUCCESS", true, "Login successful")
	entry := decode(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "true", entry["audit"])
	assert.Equal(t, "alice", entry["actor"])
	assert.Equal(t, "LOGIN_SUCCESS", entry["kind"])
	assert.Equal(t, "auth", entry["component"])
	assert.Equal(t, true, entry["success"])

	buf.Reset()
	log.Audit("alice", "LOGIN_FAILED", false, "Invalid password (attempt 1 of 5)")
	entry = decode(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, false, entry["success"])
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "json").WithRequestID("req-1").WithUsername("bob")

	log.HTTPRequest("POST", "/api/v1/auth/login", 401, 3*time.Millisecond, "10.0.0.7")
	entry := decode(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "bob", entry["username"])
	assert.Equal(t, float64(401), entry["status"])
	assert.Equal(t, "10.0.0.7", entry["client_ip"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")
	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log = NewWithWriter(&buf, "not-a-level", "json")
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "text").Info().Msg("pool ready")
	assert.Contains(t, buf.String(), "pool ready")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Audit("x", "LOGIN_ATTEMPT", true, "") })
}
