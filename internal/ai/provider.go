package ai

import (
	"context"
	"fmt"
	"strings"
)

// Request is one completion call. The system prompt is where callers put
// constraints the reply must satisfy.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Registry resolves providers by name, falling back to a default.
type Registry struct {
	byName   map[string]Provider
	fallback string
}

func NewRegistry(defaultName string, providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers)), fallback: strings.ToLower(defaultName)}
	for _, p := range providers {
		r.byName[strings.ToLower(p.Name())] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q", name)
	}
	return p, nil
}

func (r *Registry) Default() (Provider, error) { return r.Get("") }
