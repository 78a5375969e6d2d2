// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

const catalogDir = "locale"

//go:embed locale/*.po
var catalogs embed.FS

// Available returns the languages the widget can be displayed in. English is the source
// language and always comes first.
func Available() ([]language.Tag, error) {
	entries, err := fs.ReadDir(catalogs, catalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read message catalogs: %w", err)
	}
	tags := []language.Tag{language.English}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".po" {
			continue
		}
		tag, err := language.Parse(strings.TrimSuffix(entry.Name(), ".po"))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Resolve turns a locale string like "de_DE" or "de-DE" into a language tag. An empty string
// selects the locale of the system. English is used if nothing can be detected.
func Resolve(loc string) language.Tag {
	if loc == "" {
		tag, err := locale.Detect()
		if err != nil {
			return language.English
		}
		return tag
	}
	tag, err := language.Parse(strings.ReplaceAll(loc, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}

// New returns a localizer for the closest available language to loc.
func New(loc string) (*spreak.Localizer, error) {
	available, err := Available()
	if err != nil {
		return nil, err
	}
	lang := available[0]
	if _, idx, conf := language.NewMatcher(available).Match(Resolve(loc)); conf != language.No {
		lang = available[idx]
	}

	localeFS, err := fs.Sub(catalogs, catalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}
	catalogLangs := make([]any, 0, len(available)-1)
	for _, tag := range available[1:] {
		catalogLangs = append(catalogLangs, tag)
	}
	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(catalogLangs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, lang), nil
}
