package blueprint

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

const genericStyle = "generic"

//go:embed styles.yaml
var stylesYAML []byte

// StyleGuide is the art direction injected into the blueprint prompt.
type StyleGuide struct {
	Visual string `yaml:"visual"`
	Motion string `yaml:"motion"`
}

// Catalog maps style names to guidance.
type Catalog struct {
	styles map[string]StyleGuide
}

// ParseCatalog decodes a catalog document. It must define the generic fallback.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var doc struct {
		Styles map[string]StyleGuide `yaml:"styles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode style catalog: %w", err)
	}
	if _, ok := doc.Styles[genericStyle]; !ok {
		return nil, fmt.Errorf("style catalog is missing %q", genericStyle)
	}
	styles := make(map[string]StyleGuide, len(doc.Styles))
	for name, guide := range doc.Styles {
		styles[strings.ToLower(strings.TrimSpace(name))] = guide
	}
	return &Catalog{styles: styles}, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(stylesYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// Guide returns the guidance for style, falling back to the generic entry.
func (c *Catalog) Guide(style enums.VideoStyle) StyleGuide {
	if guide, ok := c.styles[strings.ToLower(strings.TrimSpace(string(style)))]; ok {
		return guide
	}
	return c.styles[genericStyle]
}
