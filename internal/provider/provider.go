package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync/atomic"
)

// Known provider names.
const (
	OpenAI = "openai"
	Ollama = "ollama"
	Gemini = "gemini"
)

// ErrUnknownProvider is returned when switching to a provider that is not
// configured.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider turns a system prompt and a user prompt into generated text.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Generate implements Provider.
func (f Func) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// ProviderError reports a failed generation call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Switcher routes Generate calls to the currently selected backend. The
// selection is the only mutable piece of provider state and is swapped
// atomically; the backend set is fixed at construction.
type Switcher struct {
	backends map[string]Provider
	current  atomic.Pointer[string]
}

// NewSwitcher creates a Switcher over backends with initial as the active one.
func NewSwitcher(initial string, backends map[string]Provider) (*Switcher, error) {
	if len(backends) == 0 {
		return nil, errors.New("provider: no backends configured")
	}
	s := &Switcher{backends: make(map[string]Provider, len(backends))}
	for name, p := range backends {
		s.backends[strings.ToLower(name)] = p
	}
	if err := s.SwitchProvider(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// CurrentProvider returns the name of the active backend.
func (s *Switcher) CurrentProvider() string {
	return *s.current.Load()
}

// SwitchProvider makes name the active backend. Names are case-insensitive.
func (s *Switcher) SwitchProvider(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := s.backends[name]; !ok {
		return fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(s.Names(), ", "))
	}
	s.current.Store(&name)
	return nil
}

// Names returns the configured backend names in sorted order.
func (s *Switcher) Names() []string {
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate calls the active backend. Any failure is returned as a
// *ProviderError.
func (s *Switcher) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	name := s.CurrentProvider()
	out, err := s.backends[name].Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return "", err
		}
		return "", &ProviderError{Provider: name, Err: err}
	}
	return out, nil
}

// Classify buckets a provider failure for metrics labelling.
func Classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 429:
			return "quota"
		case statusErr.Code >= 500:
			return "upstream"
		default:
			return "rejected"
		}
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return "connection_refused"
		}
		return "network"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	return "other"
}

// StatusError is returned by HTTP backends when the upstream answers with a
// non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}
