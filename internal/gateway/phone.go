package gateway

import "strings"

// msisdnLength is the full international length MOMO accepts: a 3-digit
// country code followed by a 9-digit subscriber number.
const msisdnLength = 12

// NormalizeMSISDN converts the phone formats customers actually type
// ("0241234567", "+233241234567", "233 24 123 4567") into the fixed
// country-code-prefixed form the provider requires. It rejects anything it
// cannot normalize so no partial charge attempt ever leaves the process.
func NormalizeMSISDN(raw, countryCode string) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)

	if s == "" {
		return "", ErrInvalidPhone
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}

	if strings.HasPrefix(s, "0") {
		s = countryCode + s[1:]
	} else if !strings.HasPrefix(s, countryCode) {
		return "", ErrInvalidPhone
	}

	if len(s) != msisdnLength {
		return "", ErrInvalidPhone
	}
	return s, nil
}
