package guide

import "strings"

// CountryTable maps a country display name to the upstream locator code.
// Lookups are case-insensitive.
type CountryTable struct {
	codes map[string]string
}

// DefaultCountryCodes is the closed set of countries with a guide source.
var DefaultCountryCodes = map[string]string{
	"UK":          "uk",
	"USA":         "us",
	"France":      "fr",
	"Germany":     "de",
	"Italy":       "it",
	"Spain":       "es",
	"Argentina":   "ar",
	"Australia":   "au",
	"India":       "in",
	"Mexico":      "mx",
	"Netherlands": "nl",
	"New Zealand": "nz",
}

// NewCountryTable builds a table from DefaultCountryCodes with overrides
// applied on top. An override with an empty code removes the country.
func NewCountryTable(overrides map[string]string) CountryTable {
	codes := make(map[string]string, len(DefaultCountryCodes)+len(overrides))
	for name, code := range DefaultCountryCodes {
		codes[CanonicalCountry(name)] = code
	}
	for name, code := range overrides {
		code = strings.TrimSpace(code)
		if code == "" {
			delete(codes, CanonicalCountry(name))
			continue
		}
		codes[CanonicalCountry(name)] = code
	}
	return CountryTable{codes: codes}
}

// Lookup returns the locator code for country.
func (t CountryTable) Lookup(country string) (string, bool) {
	code, ok := t.codes[CanonicalCountry(country)]
	return code, ok
}

// Len returns the number of configured countries.
func (t CountryTable) Len() int {
	return len(t.codes)
}

// CanonicalCountry returns the form of name used for table lookups, cache
// keys and metric labels.
func CanonicalCountry(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
