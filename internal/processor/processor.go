// Package processor implements the per-function handlers that turn raw user
// input into provider-generated output.
//
// Processors are pure with respect to ledger and audit state: they validate,
// build prompts and call the provider. Charging and recording happen in the
// dispatcher.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/provider"
)

// MaxInputLength is the baseline upper bound on input length, in characters,
// enforced by every processor.
const MaxInputLength = 10000

// ErrInvalidInput is returned when input fails a processor's validation.
var ErrInvalidInput = errors.New("invalid input")

// ProcessingError wraps a provider or backend failure during Process.
type ProcessingError struct {
	Function string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s: %v", e.Function, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ConfigurationError reports a startup-time wiring problem.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "processor configuration: " + e.Reason
}

// Processor is the contract each function variant implements.
type Processor interface {
	// FunctionName is the catalogue key this processor serves.
	FunctionName() string
	// ValidateInput reports whether raw is acceptable input.
	ValidateInput(raw string) bool
	// Process produces the function output. Failures are *ProcessingError.
	Process(ctx context.Context, raw string) (string, error)
	// RequiredPoints looks up the current cost in the catalogue.
	RequiredPoints() (int64, error)
}

// Kind enumerates the built-in function variants.
type Kind int

const (
	KindChat Kind = iota
	KindTextGeneration
	KindCodeGeneration
	KindDocumentSummary
	KindMovieClip
)

// Kinds lists every built-in variant.
var Kinds = []Kind{KindChat, KindTextGeneration, KindCodeGeneration, KindDocumentSummary, KindMovieClip}

// FunctionName returns the catalogue name served by k.
func (k Kind) FunctionName() string {
	switch k {
	case KindChat:
		return catalog.Chat
	case KindTextGeneration:
		return catalog.TextGeneration
	case KindCodeGeneration:
		return catalog.CodeGeneration
	case KindDocumentSummary:
		return catalog.DocumentSummary
	case KindMovieClip:
		return catalog.MovieClip
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) String() string { return k.FunctionName() }

// Variant is the built-in Processor. Behaviour that differs between functions
// is selected by kind.
type Variant struct {
	kind     Kind
	catalog  *catalog.Catalog
	provider provider.Provider
	prompt   Prompt
}

// New creates the processor for kind. Prompt overrides on the catalogue entry
// replace the built-in prompt halves; a catalogue entry is not required here
// because registry construction checks that separately.
func New(kind Kind, cat *catalog.Catalog, prov provider.Provider) (*Variant, error) {
	prompt, ok := defaultPrompts[kind]
	if !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown processor kind %d", int(kind))}
	}
	if prov == nil {
		return nil, &ConfigurationError{Reason: "no provider for " + kind.FunctionName()}
	}
	if cfg, err := cat.Get(kind.FunctionName()); err == nil {
		if cfg.SystemPrompt != "" {
			prompt.System = cfg.SystemPrompt
		}
		if cfg.UserTemplate != "" {
			prompt.User = cfg.UserTemplate
		}
	}
	if err := checkTemplate(kind, prompt.User); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	return &Variant{kind: kind, catalog: cat, provider: prov, prompt: prompt}, nil
}

// Builtin creates one processor per built-in kind.
func Builtin(cat *catalog.Catalog, prov provider.Provider) ([]Processor, error) {
	procs := make([]Processor, 0, len(Kinds))
	for _, k := range Kinds {
		p, err := New(k, cat, prov)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// Kind returns the variant's kind.
func (v *Variant) Kind() Kind { return v.kind }

// FunctionName implements Processor.
func (v *Variant) FunctionName() string { return v.kind.FunctionName() }

// RequiredPoints implements Processor.
func (v *Variant) RequiredPoints() (int64, error) {
	cfg, err := v.catalog.Get(v.FunctionName())
	if err != nil {
		return 0, err
	}
	return cfg.PointsCost, nil
}

// ValidateInput implements Processor.
func (v *Variant) ValidateInput(raw string) bool {
	if !baseValid(raw) {
		return false
	}
	n := utf8.RuneCountInString(raw)
	switch v.kind {
	case KindChat:
		return n <= 2000
	case KindTextGeneration:
		return n >= 10 && n <= 1000
	case KindMovieClip:
		if looksEncoded(raw) {
			req, err := DecodeMovieClip(raw)
			return err == nil && req.Validate() == nil
		}
		return true
	}
	return true
}

func baseValid(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return utf8.RuneCountInString(raw) <= MaxInputLength
}

// Process implements Processor.
func (v *Variant) Process(ctx context.Context, raw string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &ProcessingError{Function: v.FunctionName(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return "", &ProcessingError{Function: v.FunctionName(), Err: err}
	}

	userPrompt, err := ResolveTemplate(v.prompt.User, v.vars(raw))
	if err != nil {
		return "", &ProcessingError{Function: v.FunctionName(), Err: err}
	}

	out, err = v.provider.Generate(ctx, v.prompt.System, userPrompt)
	if err != nil {
		return "", &ProcessingError{Function: v.FunctionName(), Err: err}
	}
	return out, nil
}

func (v *Variant) vars(raw string) map[string]string {
	vars := map[string]string{"input": raw}
	if v.kind != KindMovieClip {
		return vars
	}
	req := MovieClipRequest{Description: raw, ClipType: "any", Style: "any", TargetLength: 60}
	if looksEncoded(raw) {
		if decoded, err := DecodeMovieClip(raw); err == nil {
			req = decoded
		}
	}
	vars["description"] = req.Description
	vars["clip_type"] = req.ClipType
	vars["style"] = req.Style
	vars["target_length"] = strconv.Itoa(req.TargetLength)
	return vars
}

// Timed runs p.Process and reports its wall-clock duration in milliseconds.
func Timed(ctx context.Context, p Processor, raw string) (string, int64, error) {
	start := time.Now()
	out, err := p.Process(ctx, raw)
	return out, time.Since(start).Milliseconds(), err
}
