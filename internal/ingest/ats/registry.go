package ats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnsupportedSourceType = errors.New("unsupported source type")

// Registry maps a source type to its connector. It is built once at startup
// and read-only afterwards.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Type()] = c
	}
	return r
}

func (r *Registry) Resolve(sourceType string) (Connector, error) {
	c, ok := r.connectors[strings.TrimSpace(sourceType)]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid types: %s)", ErrUnsupportedSourceType, sourceType, strings.Join(r.Types(), ", "))
	}
	return c, nil
}

func (r *Registry) IsSupported(sourceType string) bool {
	_, ok := r.connectors[strings.TrimSpace(sourceType)]
	return ok
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
