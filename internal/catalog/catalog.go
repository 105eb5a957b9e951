// Package catalog holds the invocable functions, their point costs and
// categories, and answers lookups by name.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownFunction is returned when a function name has no catalogue entry
// or no registered processor.
var ErrUnknownFunction = errors.New("unknown function")

// Function names known to the gateway.
const (
	Chat             = "chat"
	TextGeneration   = "text-generation"
	CodeGeneration   = "code-generation"
	DocumentSummary  = "document-summary"
	MovieClip        = "movie-clip"
	ImageRecognition = "image-recognition"
)

// FunctionConfig describes one billable AI function.
type FunctionConfig struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	PointsCost   int64  `json:"points"`
	Enabled      bool   `json:"enabled"`
	Category     string `json:"category"`
	SystemPrompt string `json:"-"`
	UserTemplate string `json:"-"`
}

// Catalog is an immutable snapshot of function configuration, built once at
// startup. All accessors return copies.
type Catalog struct {
	configs map[string]FunctionConfig
}

// New builds a Catalog from the given entries. Names must be unique and
// non-empty, and costs must be non-negative.
func New(entries []FunctionConfig) (*Catalog, error) {
	configs := make(map[string]FunctionConfig, len(entries))
	for _, fc := range entries {
		fc.Name = strings.TrimSpace(fc.Name)
		if fc.Name == "" {
			return nil, errors.New("catalog: function name is required")
		}
		if fc.PointsCost < 0 {
			return nil, fmt.Errorf("catalog: function %q has negative points cost %d", fc.Name, fc.PointsCost)
		}
		if _, dup := configs[fc.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate function %q", fc.Name)
		}
		if fc.Category == "" {
			fc.Category = "general"
		}
		if fc.DisplayName == "" {
			fc.DisplayName = fc.Name
		}
		configs[fc.Name] = fc
	}
	return &Catalog{configs: configs}, nil
}

// Get returns the configuration for name.
func (c *Catalog) Get(name string) (FunctionConfig, error) {
	fc, ok := c.configs[name]
	if !ok {
		return FunctionConfig{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return fc, nil
}

// All returns every configured function keyed by name, enabled or not.
func (c *Catalog) All() map[string]FunctionConfig {
	out := make(map[string]FunctionConfig, len(c.configs))
	for name, fc := range c.configs {
		out[name] = fc
	}
	return out
}

// EnabledNames returns the set of enabled function names.
func (c *Catalog) EnabledNames() map[string]struct{} {
	out := make(map[string]struct{}, len(c.configs))
	for name, fc := range c.configs {
		if fc.Enabled {
			out[name] = struct{}{}
		}
	}
	return out
}

// IsEnabled reports whether name is configured and enabled.
func (c *Catalog) IsEnabled(name string) bool {
	fc, ok := c.configs[name]
	return ok && fc.Enabled
}

// ByCategory groups enabled functions by category, each group sorted by name.
func (c *Catalog) ByCategory() map[string][]FunctionConfig {
	out := make(map[string][]FunctionConfig)
	for _, fc := range c.configs {
		if !fc.Enabled {
			continue
		}
		out[fc.Category] = append(out[fc.Category], fc)
	}
	for _, group := range out {
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
	}
	return out
}

// Points returns the points cost of every configured function.
func (c *Catalog) Points() map[string]int64 {
	out := make(map[string]int64, len(c.configs))
	for name, fc := range c.configs {
		out[name] = fc.PointsCost
	}
	return out
}

// Names returns all configured function names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
