// internal/grid/grid.go
//
// A grid spec is the declarative half of a sweep: fixed arguments, the
// parameters to vary and the optional flags. Expand turns it into one argument
// suffix per invocation of the target program.

package grid

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyKey indicates a grid parameter without a name.
	ErrEmptyKey = errors.New("grid: parameter key is empty")
	// ErrDuplicateKey indicates the same parameter was declared twice.
	ErrDuplicateKey = errors.New("grid: duplicate parameter key")
	// ErrEmptyValues indicates a parameter with no candidate values, which
	// would collapse the whole product to zero configurations.
	ErrEmptyValues = errors.New("grid: parameter has no values")
)

// Param is one grid dimension: a flag name and its candidate values. Values are
// kept as the text that ends up on the command line.
type Param struct {
	Key    string
	Values []string
}

// Spec holds everything the expander needs. Params order is the enumeration
// order: the last param varies fastest.
type Spec struct {
	StaticParams string
	Params       []Param
	Flags        []string
}

// ResolvedConfig is the argument suffix for a single program invocation.
type ResolvedConfig string

// String returns the raw argument text.
func (c ResolvedConfig) String() string { return string(c) }

// Keys lists the parameter names in declaration order.
func (s Spec) Keys() []string {
	keys := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		keys = append(keys, p.Key)
	}
	return keys
}

// EffectiveFlags returns the flag list the expander will use. A missing list
// means a single empty flag.
func (s Spec) EffectiveFlags() []string {
	if len(s.Flags) == 0 {
		return []string{""}
	}
	return s.Flags
}

// Validate reports inputs the expander would silently degrade on. Callers run
// it before expanding; Expand itself never fails.
func (s Spec) Validate() error {
	seen := make(map[string]struct{}, len(s.Params))
	for i, p := range s.Params {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			return fmt.Errorf("params[%d]: %w", i, ErrEmptyKey)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyValues, key)
		}
	}
	return nil
}

// Count returns how many configurations Expand will produce without building
// them.
func Count(s Spec) int {
	total := 1
	for _, p := range s.Params {
		total *= len(p.Values)
	}
	return total * len(s.EffectiveFlags())
}
