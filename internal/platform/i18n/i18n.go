// Package i18n holds the user-facing message catalog and locale resolution.
package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supportedTags = []language.Tag{
	language.English,
	language.Spanish,
}

var tagMatcher = language.NewMatcher(supportedTags)

var messages = mustBuildCatalog()

// Supported returns the list of supported language tags.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(supportedTags))
	copy(tags, supportedTags)
	return tags
}

// Default returns the default language tag.
func Default() language.Tag {
	return language.English
}

// Parse resolves a configured locale ("es", "es-MX", "en") to the closest
// supported tag. Blank or unparseable values resolve to Default.
func Parse(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return Default()
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Default()
	}
	return match(tag)
}

// FromRequest picks the tag from the Accept-Language header, falling back to fallback.
func FromRequest(r *http.Request, fallback language.Tag) language.Tag {
	if r == nil {
		return fallback
	}
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	return match(tags...)
}

// Printer returns a printer bound to the storefront catalog.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(match(tag), message.Catalog(messages))
}

func match(tags ...language.Tag) language.Tag {
	_, idx, conf := tagMatcher.Match(tags...)
	if conf == language.No {
		return Default()
	}
	return supportedTags[idx]
}

func mustBuildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, translations := range entries {
		for tag, text := range translations {
			if err := b.SetString(tag, key, text); err != nil {
				panic("i18n: " + key + ": " + err.Error())
			}
		}
	}
	return b
}
