package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/jeton/internal/catalog"
)

type stubProcessor struct{ name string }

func (s stubProcessor) FunctionName() string                            { return s.name }
func (s stubProcessor) ValidateInput(string) bool                       { return true }
func (s stubProcessor) Process(context.Context, string) (string, error) { return "", nil }
func (s stubProcessor) RequiredPoints() (int64, error)                  { return 0, nil }

func TestNewRegistry_Builtin(t *testing.T) {
	cat := defaultCatalog(t)
	procs, err := Builtin(cat, &recordingProvider{})
	require.NoError(t, err)

	reg, err := NewRegistry(cat, procs...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		catalog.Chat, catalog.CodeGeneration, catalog.DocumentSummary, catalog.MovieClip, catalog.TextGeneration,
	}, reg.Names())

	p, err := reg.Resolve(catalog.MovieClip)
	require.NoError(t, err)
	assert.Equal(t, catalog.MovieClip, p.FunctionName())
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	cat := defaultCatalog(t)
	_, err := NewRegistry(cat, stubProcessor{catalog.Chat}, stubProcessor{catalog.Chat})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "duplicate")
}

func TestNewRegistry_MissingCatalogEntry(t *testing.T) {
	cat := defaultCatalog(t)
	_, err := NewRegistry(cat, stubProcessor{"translate"})

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg, err := NewRegistry(defaultCatalog(t), stubProcessor{catalog.Chat})
	require.NoError(t, err)

	_, err = reg.Resolve("translate")
	assert.ErrorIs(t, err, catalog.ErrUnknownFunction)
}

func TestRegistry_IsAvailable(t *testing.T) {
	reg, err := NewRegistry(defaultCatalog(t),
		stubProcessor{catalog.Chat},
		stubProcessor{catalog.ImageRecognition},
	)
	require.NoError(t, err)

	assert.True(t, reg.IsAvailable(catalog.Chat))
	assert.False(t, reg.IsAvailable(catalog.ImageRecognition), "disabled in catalogue")
	assert.False(t, reg.IsAvailable(catalog.CodeGeneration), "enabled but no processor")
}
