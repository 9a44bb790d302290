package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/homelink/pkg/homelink/channel"
	"github.com/tsarna/homelink/pkg/homelink/watch"
	"go.uber.org/zap"
)

func TestOutputFormat(t *testing.T) {
	for name, want := range map[string]string{"json": formatJSON, "yaml": formatYAML, "yml": formatYAML} {
		got, err := outputFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := outputFormat("xml")
	assert.Error(t, err)
}

func TestWriteBody(t *testing.T) {
	t.Run("json reindented", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeBody(&buf, []byte(`{"id":7}`), formatJSON))
		assert.Equal(t, "{\n  \"id\": 7\n}\n", buf.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeBody(&buf, []byte(`{"id":7,"tags":["a"]}`), formatYAML))
		assert.Equal(t, "id: 7\ntags:\n  - a\n", buf.String())
	})

	t.Run("not json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeBody(&buf, []byte("plain text"), formatYAML))
		assert.Equal(t, "plain text", buf.String())
	})
}

func TestEnvelopeMessage(t *testing.T) {
	msg, err := envelopeMessage(`{"type":"ping"}`, "", "")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, msg)

	msg, err = envelopeMessage(`{"id":7}`, "device", "refresh")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"device","action":"refresh","data":{"id":7}}`, msg)

	msg, err = envelopeMessage("hello", "note", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"note","data":"hello"}`, msg)

	_, err = envelopeMessage("x", "", "refresh")
	assert.Error(t, err)
}

func TestSplitPair(t *testing.T) {
	k, v, err := splitPair("name=a=b", "--field")
	require.NoError(t, err)
	assert.Equal(t, "name", k)
	assert.Equal(t, "a=b", v)

	_, _, err = splitPair("=x", "--field")
	assert.Error(t, err)
	_, _, err = splitPair("novalue", "--field")
	assert.Error(t, err)
}

func TestFieldValue(t *testing.T) {
	assert.Equal(t, float64(3), fieldValue("3", "json"))
	assert.Equal(t, true, fieldValue("true", "multipart"))
	assert.Equal(t, "lamp", fieldValue("lamp", "json"))
	assert.Equal(t, "3", fieldValue("3", "url"))
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestInspectToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{
		"sub": "admin",
		"iat": now.Add(-time.Hour).Unix(),
		"exp": now.Add(-time.Minute).Unix(),
	})

	info, err := inspectToken(token, now)
	require.NoError(t, err)
	assert.Equal(t, "admin", info.Subject)
	require.NotNil(t, info.ExpiresAt)
	assert.Equal(t, now.Add(-time.Minute), *info.ExpiresAt)
	assert.Equal(t, now.Add(-time.Hour), *info.IssuedAt)
	assert.True(t, info.Expired)

	exp, ok := tokenExpiry(token)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-time.Minute).Unix(), exp.Unix())

	_, err = inspectToken("opaque-token", now)
	assert.Error(t, err)
	_, ok = tokenExpiry("opaque-token")
	assert.False(t, ok)
}

func TestPrintClaimsJSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, jwt.MapClaims{"sub": "admin"})

	var buf bytes.Buffer
	require.NoError(t, printClaims(&buf, token, formatJSON, now))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "admin", out["subject"])
	assert.Equal(t, false, out["expired"])
	assert.NotContains(t, out, "expires_at")
}

func TestEventPrinter(t *testing.T) {
	filter, err := watch.NewFilter([]string{"device/+"}, ".id")
	require.NoError(t, err)

	var buf bytes.Buffer
	p := &eventPrinter{out: &buf, filter: filter, format: formatJSON, logger: zap.NewNop()}

	p.print(channel.Event{Type: "device", Action: "update", Payload: json.RawMessage(`{"id":7}`)})
	p.print(channel.Event{Type: "room", Action: "update", Payload: json.RawMessage(`{"id":8}`)})

	assert.Equal(t, "device/update\t7\n", buf.String())
}

func TestExitMonitor(t *testing.T) {
	m := &exitMonitor{done: make(chan struct{})}
	m.OnRetriesExhausted(context.Background(), nil)
	m.OnRetriesExhausted(context.Background(), nil)

	select {
	case <-m.done:
	default:
		t.Fatal("done not closed")
	}
}
