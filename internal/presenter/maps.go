// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import "github.com/vorlif/spreak/localize"

// MoonPhaseIcon maps the moon phase names to their emoji.
var MoonPhaseIcon = map[string]string{
	"New Moon":        "🌑",
	"Waxing Crescent": "🌒",
	"First Quarter":   "🌓",
	"Waxing Gibbous":  "🌔",
	"Full Moon":       "🌕",
	"Waning Gibbous":  "🌖",
	"Third Quarter":   "🌗",
	"Waning Crescent": "🌘",
}

// i18nVars holds the keys usable with the loc template function. Lookups are case-insensitive.
var i18nVars = map[string]localize.MsgID{
	"title":           "Your location:",
	"unknown":         "Unknown",
	"coordinates":     "Coordinates",
	"elevation":       "Elevation",
	"street":          "Street",
	"city":            "City",
	"country":         "Country",
	"sunrise":         "Sunrise",
	"sunset":          "Sunset",
	"moonphase":       "Moon phase",
	"updated":         "Updated",
	"new moon":        "New moon",
	"waxing crescent": "Waxing crescent",
	"first quarter":   "First quarter",
	"waxing gibbous":  "Waxing gibbous",
	"full moon":       "Full moon",
	"waning gibbous":  "Waning gibbous",
	"third quarter":   "Third quarter",
	"waning crescent": "Waning crescent",
}
