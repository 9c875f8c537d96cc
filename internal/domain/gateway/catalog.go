package gateway

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// DefaultModelID is used when a request names no model
const DefaultModelID = "toolbaz-v4.5-fast"

// DefaultModels is the built-in catalog
func DefaultModels() []chat.ModelDescriptor {
	return []chat.ModelDescriptor{
		{ID: "toolbaz-v4.5-fast", Name: "Toolbaz v4.5 Fast", OwnedBy: "toolbaz"},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", OwnedBy: "google"},
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", OwnedBy: "google"},
		{ID: "claude-sonnet-4", Name: "Claude Sonnet 4", OwnedBy: "anthropic"},
		{ID: "gpt-5", Name: "GPT-5", OwnedBy: "openai"},
		{ID: "grok-4-fast", Name: "Grok 4 Fast", OwnedBy: "xai"},
	}
}

// Catalog is the static list of models exposed to callers. Ids outside the
// list are accepted only when they match a passthrough glob.
type Catalog struct {
	models      []chat.ModelDescriptor
	index       map[string]chat.ModelDescriptor
	passthrough []string
}

// NewCatalog builds a catalog; an empty list falls back to DefaultModels
func NewCatalog(models []chat.ModelDescriptor, passthrough []string) (*Catalog, error) {
	if len(models) == 0 {
		models = DefaultModels()
	}
	for _, pattern := range passthrough {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &PatternError{Pattern: pattern}
		}
	}

	c := &Catalog{
		models:      append([]chat.ModelDescriptor(nil), models...),
		index:       make(map[string]chat.ModelDescriptor, len(models)),
		passthrough: passthrough,
	}
	for _, m := range c.models {
		c.index[m.ID] = m
	}
	return c, nil
}

// PatternError reports an invalid passthrough glob
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid passthrough model pattern " + e.Pattern
}

// List returns the catalog in declaration order
func (c *Catalog) List() []chat.ModelDescriptor {
	return append([]chat.ModelDescriptor(nil), c.models...)
}

// Lookup returns the catalog entry for id
func (c *Catalog) Lookup(id string) (chat.ModelDescriptor, bool) {
	m, ok := c.index[id]
	return m, ok
}

// Accepts reports whether id may be forwarded to the site
func (c *Catalog) Accepts(id string) bool {
	if _, ok := c.index[id]; ok {
		return true
	}
	for _, pattern := range c.passthrough {
		if ok, _ := doublestar.Match(pattern, id); ok {
			return true
		}
	}
	return false
}
