package retailer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/abx/internal/shared"
)

// Locale describes a retailer marketplace.
type Locale struct {
	CountryCode   string
	Domain        string
	MarketplaceID string
}

var locales = map[string]Locale{
	"us": {CountryCode: "us", Domain: "com", MarketplaceID: "AF2M0KC94RCEA"},
	"ca": {CountryCode: "ca", Domain: "ca", MarketplaceID: "A2CQZ5RBY40XE"},
	"uk": {CountryCode: "uk", Domain: "co.uk", MarketplaceID: "A2I9A3Q2GNFNGQ"},
	"au": {CountryCode: "au", Domain: "com.au", MarketplaceID: "AN7EY7DTAW63G"},
	"fr": {CountryCode: "fr", Domain: "fr", MarketplaceID: "A2728XDNODOQ8T"},
	"de": {CountryCode: "de", Domain: "de", MarketplaceID: "AN7V1F1VY261K"},
	"jp": {CountryCode: "jp", Domain: "co.jp", MarketplaceID: "A1QAP3MOU4173J"},
	"it": {CountryCode: "it", Domain: "it", MarketplaceID: "A2N7FU2W2BU2ZC"},
	"in": {CountryCode: "in", Domain: "in", MarketplaceID: "AJO3FBRUE6J4S"},
	"es": {CountryCode: "es", Domain: "es", MarketplaceID: "ALMIKO4SZCSAR"},
	"br": {CountryCode: "br", Domain: "com.br", MarketplaceID: "A10J1VAYUDTYRN"},
}

// aliases maps alternative spellings to a canonical country code.
var aliases = map[string]string{"gb": "uk"}

// LookupLocale returns the [Locale] for a country code, case-insensitively.
func LookupLocale(code string) (Locale, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if alias, ok := aliases[code]; ok {
		code = alias
	}

	locale, ok := locales[code]
	if !ok {
		return Locale{}, fmt.Errorf("%w: unsupported country code %q (known: %s)", shared.ErrInvalidRequest, code, strings.Join(CountryCodes(), ", "))
	}
	return locale, nil
}

// CountryCodes lists the supported country codes in alphabetical order.
func CountryCodes() []string {
	codes := make([]string, 0, len(locales))
	for code := range locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Endpoints are the base URLs of the retailer's API and auth hosts.
type Endpoints struct {
	API  string
	Auth string
}

// Endpoints returns the default hosts for the locale.
func (l Locale) Endpoints() Endpoints {
	return Endpoints{
		API:  "https://api.audible." + l.Domain,
		Auth: "https://api.amazon." + l.Domain,
	}
}

// Override replaces any endpoint that is set in o.
func (e Endpoints) Override(o Endpoints) Endpoints {
	if o.API != "" {
		e.API = strings.TrimRight(o.API, "/")
	}
	if o.Auth != "" {
		e.Auth = strings.TrimRight(o.Auth, "/")
	}
	return e
}
