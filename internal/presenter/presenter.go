// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/wneessen/go-moonphase"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/vartype"
)

// OutputClass is the CSS class every rendered output carries.
const OutputClass = "waybar-location"

// ErrUnknownMode is returned for display modes other than compact, halfscreen and fullscreen.
var ErrUnknownMode = errors.New("unknown display mode")

// Mode is the display mode of the widget.
type Mode string

const (
	ModeCompact    Mode = config.ModeCompact
	ModeHalfscreen Mode = config.ModeHalfscreen
	ModeFullscreen Mode = config.ModeFullscreen
)

// ParseMode returns the Mode for val, ignoring case.
func ParseMode(val string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(val))); mode {
	case ModeCompact, ModeHalfscreen, ModeFullscreen:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, val)
	}
}

// Interactive reports whether the mode reacts to user input. The compact mode does not.
func (m Mode) Interactive() bool {
	return m != ModeCompact
}

// Place is what the locator hands over for display: the resolved address together with the
// coordinate it was resolved for.
type Place struct {
	Address    geocode.Address
	Coordinate geobus.Coordinate
	Elevation  vartype.Elevation
	ResolvedAt time.Time
}

// TemplateContext is the data the text and tooltip templates are rendered with.
type TemplateContext struct {
	Mode        Mode
	CityLabel   string
	StreetLabel string
	Latitude    float64
	Longitude   float64
	Elevation   vartype.Elevation
	Address     geocode.Address
	MaxWidth    int
	Known       bool

	UpdateTime    time.Time
	SunriseTime   time.Time
	SunsetTime    time.Time
	MoonPhase     string
	MoonPhaseIcon string
}

// Output is a single line of Waybar custom module JSON.
type Output struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Class   []string `json:"class"`
}

// Presenter renders a Place into the waybar JSON output.
type Presenter struct {
	Mode     Mode
	MaxWidth int

	TextTemplate    *template.Template
	AltTextTemplate *template.Template
	TooltipTemplate *template.Template

	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	now       func() time.Time
}

func New(conf *config.Config, localizer *spreak.Localizer) (*Presenter, error) {
	mode, err := ParseMode(conf.Display.Mode)
	if err != nil {
		return nil, err
	}
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	pres := &Presenter{
		Mode:      mode,
		MaxWidth:  conf.Display.MaxWidth,
		localizer: localizer,
		humanizer: collection.CreateHumanizer(localizer.Language()),
		now:       time.Now,
	}

	templates := []struct {
		name   string
		source string
		target **template.Template
	}{
		{"text", conf.Templates.Text, &pres.TextTemplate},
		{"alt_text", conf.Templates.AltText, &pres.AltTextTemplate},
		{"tooltip", conf.Templates.Tooltip, &pres.TooltipTemplate},
	}
	for _, tpl := range templates {
		parsed, err := template.New(tpl.name).Funcs(pres.templateFuncMap()).Parse(tpl.source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", tpl.name, err)
		}
		*tpl.target = parsed
	}

	// Execution errors like unknown fields only show up when rendering
	if _, err = pres.Render(pres.BuildContext(Place{}), false); err != nil {
		return nil, err
	}
	if _, err = pres.Render(pres.BuildContext(Place{}), true); err != nil {
		return nil, err
	}

	return pres, nil
}

// BuildContext turns a place into the data the templates are executed with.
func (p *Presenter) BuildContext(place Place) TemplateContext {
	now := p.now()
	addr := place.Address

	tplCtx := TemplateContext{
		Mode:        p.Mode,
		CityLabel:   p.cityLabel(addr),
		StreetLabel: addr.Street,
		Latitude:    place.Coordinate.Lat,
		Longitude:   place.Coordinate.Lon,
		Elevation:   place.Elevation,
		Address:     addr,
		MaxWidth:    p.MaxWidth,
		Known:       addr.AddressFound,
		UpdateTime:  place.ResolvedAt,
	}
	if tplCtx.UpdateTime.IsZero() {
		tplCtx.UpdateTime = now
	}

	if !place.ResolvedAt.IsZero() && place.Coordinate.Valid() {
		rise, set := sunrise.SunriseSunset(place.Coordinate.Lat, place.Coordinate.Lon, now.Year(),
			now.Month(), now.Day())
		tplCtx.SunriseTime = rise.In(now.Location())
		tplCtx.SunsetTime = set.In(now.Location())
	}

	moon := moonphase.New(now)
	tplCtx.MoonPhase = moon.PhaseName()
	tplCtx.MoonPhaseIcon = MoonPhaseIcon[tplCtx.MoonPhase]

	return tplCtx
}

// Render executes the templates. With alt set, the alternative text template is used.
func (p *Presenter) Render(tplCtx TemplateContext, alt bool) (Output, error) {
	output := Output{Class: []string{OutputClass, string(tplCtx.Mode)}}
	if !tplCtx.Known {
		output.Class = append(output.Class, "unknown")
	}

	textTpl := p.TextTemplate
	if alt {
		textTpl = p.AltTextTemplate
	}
	text, err := execute(textTpl, tplCtx)
	if err != nil {
		return output, err
	}
	tooltip, err := execute(p.TooltipTemplate, tplCtx)
	if err != nil {
		return output, err
	}
	output.Text = text
	output.Tooltip = tooltip

	return output, nil
}

func (p *Presenter) cityLabel(addr geocode.Address) string {
	label := addr.City
	if label == "" {
		label = p.loc("unknown")
	}
	if addr.CountryCode != "" {
		label += ", " + addr.CountryCode
	}
	return label
}

func execute(tpl *template.Template, tplCtx TemplateContext) (string, error) {
	if tpl == nil {
		return "", nil
	}
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, tplCtx); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
