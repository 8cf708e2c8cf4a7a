package document

import "strings"

// countryCodes maps the country names we see in party records (French and
// English spellings) to ISO 3166-1 alpha-2. Lookup is case-insensitive;
// anything unknown falls back to FR.
var countryCodes = map[string]string{
	"france":         "FR",
	"belgique":       "BE",
	"belgium":        "BE",
	"allemagne":      "DE",
	"germany":        "DE",
	"deutschland":    "DE",
	"espagne":        "ES",
	"spain":          "ES",
	"italie":         "IT",
	"italy":          "IT",
	"luxembourg":     "LU",
	"suisse":         "CH",
	"switzerland":    "CH",
	"pays-bas":       "NL",
	"netherlands":    "NL",
	"portugal":       "PT",
	"royaume-uni":    "GB",
	"united kingdom": "GB",
	"irlande":        "IE",
	"ireland":        "IE",
	"autriche":       "AT",
	"austria":        "AT",
	"etats-unis":     "US",
	"états-unis":     "US",
	"united states":  "US",
	"monaco":         "MC",
	"canada":         "CA",
}

// CountryCode resolves a free-text country name to an alpha-2 code.
// Two-letter input is assumed to already be a code.
func CountryCode(name string) string {
	s := strings.TrimSpace(name)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	if code, ok := countryCodes[strings.ToLower(s)]; ok {
		return code
	}
	return "FR"
}
