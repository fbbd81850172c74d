package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString holds a credential such as DATABASE_URL or
// OPENTOPOGRAPHY_API_KEY. Printing, JSON encoding and slog attributes all
// render it as a fixed placeholder; only Unmask yields the value.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

// GoString covers %#v, which bypasses String.
func (s SecretString) GoString() string { return redactedPlaceholder }

func (s SecretString) MarshalJSON() ([]byte, error) { return redactedJSON, nil }

// LogValue keeps the secret out of structured logs, including config
// sections logged as a group.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redactedPlaceholder) }

// Unmask returns the plaintext. Call it only where the value is handed to
// its consumer: the pgx pool config or the OpenTopography query string.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether a value was configured, without exposing it.
func (s SecretString) IsSet() bool { return s != "" }
