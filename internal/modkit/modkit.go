package modkit

import "amplisend/internal/modkit/module"

// Module is the common surface for modules that mount routes and expose ports
type Module = module.Module

// Builder constructs a Module from shared deps
type Builder func(Deps) (Module, error)

// Build runs each builder in order and stops at the first error
func Build(d Deps, builders ...Builder) ([]Module, error) {
	out := make([]Module, 0, len(builders))
	for _, b := range builders {
		m, err := b(d)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
