package payments

import (
	"fmt"
	"sort"

	"bookstore/internal/models"
)

// Registry maps provider names to adapters.
type Registry struct {
	providers map[models.PaymentProvider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.PaymentProvider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// ErrUnsupportedProvider is returned by Get for unregistered names.
type ErrUnsupportedProvider struct {
	Name string
}

func (e *ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported payment provider %q", e.Name)
}

func (r *Registry) Get(name models.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &ErrUnsupportedProvider{Name: string(name)}
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
