package types

// redactedPlaceholder replaces secret values in logs and serialized output.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values such as refresh tokens and API keys.
// It overrides String() and MarshalJSON() to return a redacted placeholder.
//
// Call Unmask() to retrieve the raw plaintext only at the point a secret
// is genuinely needed (HTTP headers, DSNs, cipher keys).
type SecretString string

// String returns a redacted placeholder instead of the raw value. This is
// what fmt and slog see when a SecretString leaks into a log statement.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}
