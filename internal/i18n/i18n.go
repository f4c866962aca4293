// Package i18n holds the message catalogs the bot replies with.
//
// Catalogs are flat JSON objects embedded from locales/, one file per
// language code. Templates use {name} placeholders.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Fallback is the language used for unknown codes and missing keys.
const Fallback = "en"

//go:embed locales/*.json
var localesFS embed.FS

// Catalog is the set of loaded languages. It is read-only after Load.
type Catalog struct {
	messages map[string]map[string]string
	codes    []string
	matcher  language.Matcher
}

// Load parses every embedded catalog.
func Load() (*Catalog, error) {
	entries, err := localesFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: listing locales: %w", err)
	}

	c := &Catalog{messages: make(map[string]map[string]string)}
	for _, e := range entries {
		data, err := localesFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("i18n: reading %s: %w", e.Name(), err)
		}

		var messages map[string]string
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("i18n: parsing %s: %w", e.Name(), err)
		}

		code := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		c.messages[code] = messages
		c.codes = append(c.codes, code)
	}

	if _, ok := c.messages[Fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback catalog %q is missing", Fallback)
	}
	slices.Sort(c.codes)

	tags := make([]language.Tag, 0, len(c.codes))
	for _, code := range c.codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("i18n: catalog %q is not a language tag: %w", code, err)
		}
		tags = append(tags, tag)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// MustLoad is Load for tests and for main, where a broken embedded catalog
// is a build defect.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Codes returns the supported language codes, sorted.
func (c *Catalog) Codes() []string {
	return slices.Clone(c.codes)
}

// Supports reports whether lang has a catalog.
func (c *Catalog) Supports(lang string) bool {
	_, ok := c.messages[lang]
	return ok
}

// Match maps a client IETF tag such as "ru-RU" to a supported code.
func (c *Catalog) Match(tag string) (string, bool) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	_, index, confidence := c.matcher.Match(t)
	if confidence == language.No {
		return "", false
	}
	return c.codes[index], true
}

// Text renders key in lang, substituting vars. Missing keys fall back to
// English, then to the key itself.
func (c *Catalog) Text(lang, key string, vars map[string]string) string {
	msg, ok := c.messages[lang][key]
	if !ok {
		msg, ok = c.messages[Fallback][key]
	}
	if !ok {
		return key
	}
	for name, value := range vars {
		msg = strings.ReplaceAll(msg, "{"+name+"}", value)
	}
	return msg
}

// For binds the catalog to one language.
func (c *Catalog) For(lang string) Localizer {
	if !c.Supports(lang) {
		lang = Fallback
	}
	return Localizer{catalog: c, lang: lang}
}

// Localizer renders messages in a fixed language.
type Localizer struct {
	catalog *Catalog
	lang    string
}

func (l Localizer) Lang() string { return l.lang }

// T renders a message without variables.
func (l Localizer) T(key string) string {
	return l.catalog.Text(l.lang, key, nil)
}

// Tf renders a message template.
func (l Localizer) Tf(key string, vars map[string]string) string {
	return l.catalog.Text(l.lang, key, vars)
}
