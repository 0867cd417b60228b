package config

// Secret is a string that never prints its value.
type Secret string

const redacted = "[REDACTED]"

// String redacts non-empty secrets.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString redacts %#v output.
func (s Secret) GoString() string {
	return s.String()
}

// Value returns the underlying secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret has a value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalText keeps secrets out of serialized configs.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
