// Package validation provides input validation for dappkit.
package validation

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// MaxPathLength bounds the page path that scopes a snapshot key
const MaxPathLength = 512

// Form identities: element ids or a decimal position among preserved forms
var formIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateNetworkID validates a decimal network id as found in artifact "networks" keys
func ValidateNetworkID(id string) error {
	if id == "" {
		return errors.New("network ID cannot be empty")
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return errors.New("network ID must be a decimal integer")
	}
	if n == 0 {
		return errors.New("network ID must be positive")
	}
	return nil
}

// ValidateSchemaVersion checks an artifact schema version.
// An empty version is accepted; hand-written artifacts often omit it.
func ValidateSchemaVersion(v string) error {
	if v == "" {
		return nil
	}
	normalized := "v" + strings.TrimPrefix(v, "v")
	if !semver.IsValid(normalized) {
		return errors.New("invalid schema version: must be semver")
	}
	if semver.Compare(semver.Major(normalized), "v3") < 0 {
		return errors.New("unsupported schema version: networks map requires schema 3.x or later")
	}
	return nil
}

// ValidateSessionID validates a form-state session id
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("session ID must be a UUID")
	}
	return nil
}

// ValidatePagePath validates the page path a snapshot is scoped to
func ValidatePagePath(path string) error {
	if path == "" {
		return errors.New("page path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return errors.New("page path must start with /")
	}
	if len(path) > MaxPathLength {
		return errors.New("page path too long")
	}
	if strings.ContainsAny(path, "#?\x00") {
		return errors.New("page path must not contain '#', '?' or NUL")
	}
	return nil
}

// ValidateFormID validates a form identity
func ValidateFormID(id string) error {
	if id == "" {
		return errors.New("form identity cannot be empty")
	}
	if !formIDRegex.MatchString(id) {
		return errors.New("invalid form identity: letters, digits and _.:- only, max 128 chars")
	}
	return nil
}

// ValidateAge parses an age field the way the browser's Number() coercion would
// accept it, restricted to non-negative integers.
func ValidateAge(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("age cannot be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("age must be a non-negative integer")
	}
	return n, nil
}
