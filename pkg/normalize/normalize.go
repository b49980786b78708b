package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Reason classifies a normalization failure.
type Reason string

const InvalidPhoneFormat Reason = "invalid_phone_format"

// Error reports a field value that could not be canonicalized. Callers treat
// the field as absent for matching; the record itself is never dropped.
type Error struct {
	Reason Reason
	Raw    string
}

func (e Error) Error() string {
	return fmt.Sprintf("normalize: %s (%q)", e.Reason, e.Raw)
}

func IsNormalizationError(err error) bool {
	var ne Error
	return errors.As(err, &ne)
}

// DefaultCountryCode is applied when the caller supplies none.
const DefaultCountryCode = "1"

// Phone canonicalizes a raw phone number into international form ("+<digits>").
// Idempotent: feeding a canonical phone back in returns it unchanged.
//
// Rules, in order: an already-prefixed international number passes through;
// ten digits get the default country code; country-code-and-ten digits get a
// plus; anything else is an InvalidPhoneFormat error.
func Phone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	trimmed := strings.TrimSpace(raw)
	digits := stripNonDigits(trimmed)

	if strings.HasPrefix(trimmed, "+") {
		if len(digits) >= 11 && len(digits) <= 15 {
			return "+" + digits, nil
		}
		return "", Error{Reason: InvalidPhoneFormat, Raw: raw}
	}

	switch {
	case len(digits) == 10:
		return "+" + countryCode + digits, nil
	case len(digits) == 10+len(countryCode) && strings.HasPrefix(digits, countryCode):
		return "+" + digits, nil
	default:
		return "", Error{Reason: InvalidPhoneFormat, Raw: raw}
	}
}

// NameTokens is the comparable form of a personal name: ordered lower-case
// tokens with the final token taken as the family name. Nickname expansion is
// deliberately not done here; that ambiguity belongs to match scoring.
type NameTokens struct {
	Given  []string
	Family string
}

func (n NameTokens) Empty() bool {
	return n.Family == "" && len(n.Given) == 0
}

// Full returns all tokens joined by a single space.
func (n NameTokens) Full() string {
	if len(n.Given) == 0 {
		return n.Family
	}
	joined := strings.Join(n.Given, " ")
	if n.Family == "" {
		return joined
	}
	return joined + " " + n.Family
}

// Name lower-cases, strips punctuation, and splits a raw name into tokens.
func Name(raw string) NameTokens {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return ' '
		}
	}, raw)

	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return NameTokens{}
	}
	return NameTokens{
		Given:  tokens[:len(tokens)-1],
		Family: tokens[len(tokens)-1],
	}
}

var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// DOB canonicalizes a date of birth into ISO form. Absent or unparseable
// input returns "" rather than an error: DOB is a corroborating signal, not a
// required identifier.
func DOB(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dobLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return ""
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
