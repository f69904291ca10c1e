package model

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// CanonicalEmail returns the canonical identity form of an email address:
// trimmed and lower-cased. Blank input yields "".
func CanonicalEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateEmail canonicalises raw and checks that it is a bare address.
func ValidateEmail(raw string) (string, error) {
	email := CanonicalEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecipient)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, raw)
	}
	return email, nil
}

// AddressList is a list of email addresses. In JSON it accepts either an
// array of strings or a single comma/semicolon separated string.
type AddressList []string

// ParseAddressList splits a comma or semicolon separated address string,
// dropping blank entries.
func ParseAddressList(raw string) AddressList {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	var out AddressList
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *AddressList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = ParseAddressList(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("cc must be a string or a list of strings")
	}
	var out AddressList
	for _, m := range many {
		out = append(out, ParseAddressList(m)...)
	}
	*l = out
	return nil
}

// Normalize validates every entry and returns the canonical addresses.
func (l AddressList) Normalize() ([]string, error) {
	if len(l) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(l))
	for _, raw := range l {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		email, err := ValidateEmail(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, nil
}
