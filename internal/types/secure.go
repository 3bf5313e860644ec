package types

const redacted = "[redacted]"

// SecretString holds a credential such as the database URL. It prints and
// marshals as a placeholder so config dumps and request logs never carry the
// raw value.
type SecretString string

func (s SecretString) String() string { return redacted }

// GoString covers %#v.
func (s SecretString) GoString() string { return redacted }

// MarshalJSON always encodes the placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the raw value. Only connection setup should call it.
func (s SecretString) Unmask() string {
	return string(s)
}
