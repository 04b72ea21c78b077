package messages

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

const fallbackLanguage = "en"

// Catalog maps message key -> language -> template.
// Templates use {name} placeholders.
type Catalog struct {
	messages map[string]map[string]string
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file %q: %w", path, err)
	}

	var m map[string]map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse messages file %q: %w", path, err)
	}
	return New(m), nil
}

func New(m map[string]map[string]string) *Catalog {
	if m == nil {
		m = map[string]map[string]string{}
	}
	return &Catalog{messages: m}
}

// Get never fails: unknown keys yield a diagnostic placeholder and
// missing translations fall back to English.
func (c *Catalog) Get(key, lang string) string {
	byLang, ok := c.messages[key]
	if !ok {
		return fmt.Sprintf("Message '%s' not found.", key)
	}
	if t, ok := byLang[lang]; ok {
		return t
	}
	if t, ok := byLang[fallbackLanguage]; ok {
		return t
	}
	return fmt.Sprintf("Message '%s' not found.", key)
}

// Format is Get with {name} placeholders substituted.
func (c *Catalog) Format(key, lang string, args map[string]string) string {
	text := c.Get(key, lang)
	if len(args) == 0 {
		return text
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
