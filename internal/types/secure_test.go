package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDatabaseURL = "postgres://flood:hunter2@db:5432/floodfactor"
	testTopoKey     = "ot-demo-key-8c1f"
)

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(testTopoKey)

	for _, verb := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
		out := fmt.Sprintf(verb, s)
		assert.NotContains(t, out, testTopoKey, verb)
		assert.Contains(t, out, redactedPlaceholder, verb)
	}
}

func TestSecretString_JSON(t *testing.T) {
	type externalSection struct {
		OpenTopographyAPIKey SecretString `json:"opentopography_api_key"`
		NominatimURL         string       `json:"nominatim_url"`
	}

	data, err := json.Marshal(externalSection{
		OpenTopographyAPIKey: SecretString(testTopoKey),
		NominatimURL:         "https://nominatim.openstreetmap.org",
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"opentopography_api_key":"***REDACTED***","nominatim_url":"https://nominatim.openstreetmap.org"}`,
		string(data))
}

func TestSecretString_Slog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("database configured",
		"url", SecretString(testDatabaseURL),
		slog.Group("external", "api_key", SecretString(testTopoKey)),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, testTopoKey)
	assert.Contains(t, out, `"url":"***REDACTED***"`)
}

func TestSecretString_UnmaskAndIsSet(t *testing.T) {
	s := SecretString(testDatabaseURL)
	assert.Equal(t, testDatabaseURL, s.Unmask())
	assert.True(t, s.IsSet())

	var empty SecretString
	assert.False(t, empty.IsSet())
	assert.Equal(t, "", empty.Unmask())
	assert.Equal(t, redactedPlaceholder, empty.String())
}
