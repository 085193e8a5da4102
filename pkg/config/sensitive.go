package config

// SensitiveString is a string that redacts itself in logs and fmt output.
// Use Value() to read the raw secret.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the raw secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// IsSet reports whether a secret is present.
func (s SensitiveString) IsSet() bool {
	return s != ""
}

// MarshalJSON ensures secrets never leak through JSON encoding.
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
