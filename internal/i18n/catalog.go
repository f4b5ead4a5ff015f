// Package i18n resolves user-facing message keys. The measurement code only
// ever emits keys; text comes from a Translator.
package i18n

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

const DefaultLocale = "en"

// Translator resolves a message key for a locale.
type Translator interface {
	Translate(key, locale string) string
}

//go:embed catalog.yaml
var embeddedCatalog []byte

// Catalog is a locale -> key -> text table.
type Catalog struct {
	mu       sync.RWMutex
	messages map[string]map[string]string
	fallback string
}

// Parse builds a catalog from YAML of the form `locale: {key: text}`.
func Parse(data []byte) (*Catalog, error) {
	messages := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	return &Catalog{messages: messages, fallback: DefaultLocale}, nil
}

// Load parses a catalog file and merges it over the embedded one.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message catalog %s: %w", path, err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c := Default()
	c.Merge(extra)
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns a copy of the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	c := &Catalog{messages: map[string]map[string]string{}, fallback: DefaultLocale}
	c.Merge(defaultCatalog)
	return c
}

// Merge copies every message of other into c, overwriting duplicates.
func (c *Catalog) Merge(other *Catalog) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for locale, msgs := range other.messages {
		if c.messages[locale] == nil {
			c.messages[locale] = map[string]string{}
		}
		for k, v := range msgs {
			c.messages[locale][k] = v
		}
	}
}

// Translate looks the key up in the locale, then its base language, then the
// fallback locale. Unknown keys come back unchanged.
func (c *Catalog) Translate(key, locale string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	locale = strings.ToLower(strings.ReplaceAll(locale, "_", "-"))
	candidates := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok {
		candidates = append(candidates, base)
	}
	candidates = append(candidates, c.fallback)
	for _, l := range candidates {
		if msg, ok := c.messages[l][key]; ok {
			return msg
		}
	}
	return key
}

// Format translates key and substitutes {name} placeholders.
func Format(tr Translator, key, locale string, params map[string]string) string {
	msg := tr.Translate(key, locale)
	for k, v := range params {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}
