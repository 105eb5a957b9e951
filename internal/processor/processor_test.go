package processor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/provider"
)

type recordingProvider struct {
	system, user string
	out          string
	err          error
	calls        int
}

func (p *recordingProvider) Generate(_ context.Context, system, user string) (string, error) {
	p.calls++
	p.system, p.user = system, user
	return p.out, p.err
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Defaults())
	require.NoError(t, err)
	return cat
}

func newVariant(t *testing.T, k Kind, prov provider.Provider) *Variant {
	t.Helper()
	v, err := New(k, defaultCatalog(t), prov)
	require.NoError(t, err)
	return v
}

func TestValidateInput(t *testing.T) {
	prov := &recordingProvider{}
	tests := []struct {
		name  string
		kind  Kind
		input string
		want  bool
	}{
		{"blank rejected", KindCodeGeneration, "   \n\t", false},
		{"empty rejected", KindDocumentSummary, "", false},
		{"at baseline max", KindDocumentSummary, strings.Repeat("a", MaxInputLength), true},
		{"over baseline max", KindDocumentSummary, strings.Repeat("a", MaxInputLength+1), false},
		{"chat at limit", KindChat, strings.Repeat("a", 2000), true},
		{"chat over limit", KindChat, strings.Repeat("a", 2001), false},
		{"chat counts characters not bytes", KindChat, strings.Repeat("é", 2000), true},
		{"text generation too short", KindTextGeneration, "too short", false},
		{"text generation min", KindTextGeneration, "ten chars!", true},
		{"text generation max", KindTextGeneration, strings.Repeat("a", 1000), true},
		{"text generation over max", KindTextGeneration, strings.Repeat("a", 1001), false},
		{"movie clip free text", KindMovieClip, "a sunset over the sea", true},
		{"movie clip encoded", KindMovieClip, `{"description":"d","clip_type":"trailer","style":"noir","target_length":30}`, true},
		{"movie clip encoded missing style", KindMovieClip, `{"description":"d","clip_type":"trailer","target_length":30}`, false},
		{"movie clip malformed", KindMovieClip, `{"description":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVariant(t, tt.kind, prov)
			assert.Equal(t, tt.want, v.ValidateInput(tt.input))
		})
	}
}

func TestRequiredPointsReadsCatalog(t *testing.T) {
	cat, err := catalog.New([]catalog.FunctionConfig{{Name: catalog.Chat, PointsCost: 3, Enabled: true}})
	require.NoError(t, err)

	v, err := New(KindChat, cat, &recordingProvider{})
	require.NoError(t, err)

	pts, err := v.RequiredPoints()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pts)

	orphan, err := New(KindCodeGeneration, cat, &recordingProvider{})
	require.NoError(t, err)
	_, err = orphan.RequiredPoints()
	assert.ErrorIs(t, err, catalog.ErrUnknownFunction)
}

func TestProcess_BuildsPrompt(t *testing.T) {
	prov := &recordingProvider{out: "summary"}
	v := newVariant(t, KindDocumentSummary, prov)

	out, err := v.Process(context.Background(), "the document body")
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	assert.Equal(t, "Summarize the following document:\n\nthe document body", prov.user)
	assert.NotEmpty(t, prov.system)
}

func TestProcess_MovieClipPrompt(t *testing.T) {
	prov := &recordingProvider{out: "plan"}
	v := newVariant(t, KindMovieClip, prov)

	raw, err := MovieClipRequest{Description: "city at night", ClipType: "montage", Style: "neon", TargetLength: 45}.Encode()
	require.NoError(t, err)

	_, err = v.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, prov.user, "Description: city at night")
	assert.Contains(t, prov.user, "Clip type: montage")
	assert.Contains(t, prov.user, "Style: neon")
	assert.Contains(t, prov.user, "Target length: 45 seconds")
}

func TestProcess_CatalogOverridesPrompt(t *testing.T) {
	cat, err := catalog.New([]catalog.FunctionConfig{{
		Name:         catalog.Chat,
		PointsCost:   10,
		Enabled:      true,
		SystemPrompt: "be terse",
		UserTemplate: "Q: {input}",
	}})
	require.NoError(t, err)

	prov := &recordingProvider{out: "A"}
	v, err := New(KindChat, cat, prov)
	require.NoError(t, err)

	_, err = v.Process(context.Background(), "why?")
	require.NoError(t, err)
	assert.Equal(t, "be terse", prov.system)
	assert.Equal(t, "Q: why?", prov.user)
}

func TestNew_RejectsUnsupportedTemplateVar(t *testing.T) {
	cat, err := catalog.New([]catalog.FunctionConfig{{
		Name: catalog.Chat, PointsCost: 10, Enabled: true, UserTemplate: "{style}: {input}",
	}})
	require.NoError(t, err)

	_, err = New(KindChat, cat, &recordingProvider{})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestProcess_WrapsProviderFailure(t *testing.T) {
	boom := &provider.ProviderError{Provider: provider.OpenAI, Err: errors.New("quota exceeded")}
	v := newVariant(t, KindChat, &recordingProvider{err: boom})

	_, err := v.Process(context.Background(), "hello")

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, catalog.Chat, pe.Function)
	assert.ErrorIs(t, err, boom)
}

func TestProcess_RecoversPanic(t *testing.T) {
	prov := provider.Func(func(context.Context, string, string) (string, error) {
		panic("backend exploded")
	})
	v := newVariant(t, KindCodeGeneration, prov)

	_, err := v.Process(context.Background(), "write a loop")

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "backend exploded")
}

func TestProcess_CanceledContext(t *testing.T) {
	prov := &recordingProvider{out: "x"}
	v := newVariant(t, KindChat, prov)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Process(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, prov.calls)
}

func TestTimed(t *testing.T) {
	v := newVariant(t, KindChat, &recordingProvider{out: "ok"})

	out, ms, err := Timed(context.Background(), v, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, ms, int64(0))
}

func TestMovieClipRequest(t *testing.T) {
	_, err := MovieClipRequest{Description: "d", ClipType: "t", Style: "s"}.Encode()
	assert.Error(t, err, "zero target length must be rejected")

	req := MovieClipRequest{Description: "d", ClipType: "t", Style: "s", TargetLength: 15}
	raw, err := req.Encode()
	require.NoError(t, err)

	got, err := DecodeMovieClip(raw)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}
