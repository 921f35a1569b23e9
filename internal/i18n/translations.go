// Package i18n renders user-facing API messages in the caller's language.
package i18n

import (
	"embed"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

var localeFiles = []string{"active.en.toml", "active.es.toml"}

// Translator is a thin wrapper around go-i18n's Bundle/Localizer.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
}

// NewTranslator builds a Translator with the given default locale (e.g.
// "en"). Unparseable locales fall back to English.
func NewTranslator(defaultLocale string) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			slog.Warn("i18n: failed to load message file", "file", file, "err", err)
		}
	}
	return &Translator{bundle: bundle, defaultLanguage: tag}
}

// Languages lists the tags messages are available in.
func (t *Translator) Languages() []language.Tag {
	return t.bundle.LanguageTags()
}

// T renders key for accept, which may be a single locale or a full
// Accept-Language header. Missing translations fall back to the default
// locale, then to the key itself.
func (t *Translator) T(accept, key string, data map[string]any) string {
	if key == "" {
		return ""
	}
	var langs []string
	if accept != "" {
		langs = append(langs, accept)
	}
	langs = append(langs, t.defaultLanguage.String())

	localizer := i18n.NewLocalizer(t.bundle, langs...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		slog.Debug("i18n: localize failed", "key", key, "languages", langs, "err", err)
		return key
	}
	return msg
}
