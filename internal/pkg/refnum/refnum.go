// Package refnum generates and parses redemption reference numbers of the
// form PPP-YYYYMMDD-NNNNNN, where PPP is a station prefix.
package refnum

import (
	"fmt"
	"regexp"
	"time"

	xerrors "fuelpoints-service/internal/pkg/errors"
)

var (
	pattern       = regexp.MustCompile(`^([A-Z]{3})-(\d{8})-(\d{6})$`)
	prefixPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Generate builds a reference number from a 3-letter station prefix, a date
// and a per-day sequence number.
func Generate(prefix string, at time.Time, seq int64) (string, error) {
	if !prefixPattern.MatchString(prefix) {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("reference prefix must be 3 uppercase letters, got %q", prefix))
	}
	if seq < 0 || seq > 999999 {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("reference sequence out of range: %d", seq))
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, at.UTC().Format("20060102"), seq), nil
}

// Valid reports whether the string matches the reference format.
func Valid(ref string) bool {
	return pattern.MatchString(ref)
}

// ValidPrefix reports whether the string is a usable station prefix.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

// ExtractPrefix returns the station prefix of a reference number.
func ExtractPrefix(ref string) (string, error) {
	m := pattern.FindStringSubmatch(ref)
	if m == nil {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed reference %q", ref))
	}
	return m[1], nil
}

// ExtractDate returns the generation date encoded in a reference number.
func ExtractDate(ref string) (time.Time, error) {
	m := pattern.FindStringSubmatch(ref)
	if m == nil {
		return time.Time{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed reference %q", ref))
	}
	d, err := time.ParseInLocation("20060102", m[2], time.UTC)
	if err != nil {
		return time.Time{}, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed reference date %q", m[2]))
	}
	return d, nil
}

// ExtractSequence returns the per-day sequence number of a reference.
func ExtractSequence(ref string) (int64, error) {
	m := pattern.FindStringSubmatch(ref)
	if m == nil {
		return 0, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("malformed reference %q", ref))
	}
	var seq int64
	if _, err := fmt.Sscanf(m[3], "%d", &seq); err != nil {
		return 0, err
	}
	return seq, nil
}
