// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
)

// truncateTail is appended to labels that were cut to fit the bar.
const truncateTail = "…"

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"floatFormat":   p.floatFormat,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
		"truncate":      p.truncate,
	}
}

func (p *Presenter) loc(val string) string {
	key := strings.ToLower(val)
	if raw, ok := i18nVars[key]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	if val.IsZero() {
		return "-"
	}
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// truncate cuts val to at most width terminal cells. A width of 0 or less disables it.
func (p *Presenter) truncate(val string, width int) string {
	if width <= 0 || runewidth.StringWidth(val) <= width {
		return val
	}
	return runewidth.Truncate(val, width, truncateTail)
}
