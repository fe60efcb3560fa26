package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (client secret, refresh token, bearer
// token) that must never reach a log line or a JSON payload. String and
// MarshalJSON return a redacted placeholder.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value. Only HTTP clients building Authorization
// headers or token-exchange forms should call it.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a secret value was provided.
func (s SecretString) IsSet() bool {
	return s != ""
}
