// Package fingerprint derives the canonical, timestamp-independent form
// of a log message used as the cache and structural-novelty key
// (spec.md §4.4). Deriving it is pure: identical message portions yield
// byte-identical fingerprints regardless of wall-clock time (spec.md §3,
// §8 "Fingerprint stability").
package fingerprint

import (
	"regexp"
	"strings"
)

const maxLength = 200

var (
	reISO8601  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	reRFC3164  = regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2}`)
	reEpochMs  = regexp.MustCompile(`\b\d{13}\b`)
	reEpochSec = regexp.MustCompile(`\b\d{10}\b`)
	reUUID     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reIPv4     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reIPv6     = regexp.MustCompile(`\b([0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
	reHex      = regexp.MustCompile(`(?i)\b[0-9a-f]{6,}\b`)
	reHasAlpha = regexp.MustCompile(`(?i)[a-f]`)
	reFloat    = regexp.MustCompile(`\b\d+\.\d+\b`)
	reInt      = regexp.MustCompile(`\b\d+\b`)
	rePath     = regexp.MustCompile(`(/[\w.\-]+){2,}|[A-Za-z]:\\(?:[\w.\- ]+\\?)+`)
	reSpace    = regexp.MustCompile(`\s+`)
)

// Of derives the fingerprint of a record's message portion following the
// ordered substitutions in spec.md §4.4. The caller supplies the already
// profile-extracted message (stripped of the profile's own
// timestamp/level prefix) so that this function stays a pure string
// transform.
func Of(message string) string {
	s := message

	// 1. timestamps (ISO/RFC/epoch), order matters: longer patterns first
	// so an epoch-ms run isn't partially eaten by the integer pass later.
	s = reISO8601.ReplaceAllString(s, "<T>")
	s = reRFC3164.ReplaceAllString(s, "<T>")
	s = reEpochMs.ReplaceAllString(s, "<T>")
	s = reEpochSec.ReplaceAllString(s, "<T>")

	// 2. UUIDs
	s = reUUID.ReplaceAllString(s, "<UUID>")

	// 3. IPv4/IPv6
	s = reIPv4.ReplaceAllString(s, "<IP>")
	s = reIPv6.ReplaceAllString(s, "<IP>")

	// 4. hex runs of length >= 6. A plain decimal integer of 6+ digits
	// (byte counts, PIDs, ports) matches [0-9a-f] too, so only
	// substitute runs that actually contain an a-f letter; a
	// letter-free run falls through to the integer pass below instead.
	s = reHex.ReplaceAllStringFunc(s, func(m string) string {
		if reHasAlpha.MatchString(m) {
			return "<HEX>"
		}
		return m
	})

	// 5 and 6: floats before ints so "3.14" doesn't become "<N>.<N>".
	s = reFloat.ReplaceAllString(s, "<F>")
	s = reInt.ReplaceAllString(s, "<N>")

	// 7. filesystem paths
	s = rePath.ReplaceAllString(s, "<PATH>")

	// 8. collapse whitespace
	s = reSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// 9. truncate
	if len(s) > maxLength {
		s = s[:maxLength]
	}

	return s
}
