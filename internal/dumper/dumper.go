// Package dumper provides the per-type formatting used by symbol groups:
// layout dumpers described by configuration, Lua script dumpers, and the
// Chain that combines them.
package dumper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/symtree/internal/symbolgroup"
)

// DefaultLimit caps the number of elements a container dumper produces.
const DefaultLimit = 1000

// ErrBadConfig is returned for invalid dumper descriptions.
var ErrBadConfig = errors.New("invalid dumper configuration")

// TypeDumper is a dumper for the types it matches.
type TypeDumper interface {
	symbolgroup.Dumper
	Name() string
	Matches(typeName string) bool
}

// Matcher returns a type predicate for pattern. Patterns starting with '^'
// are regular expressions; others match as type name prefixes.
func Matcher(pattern string) (func(string) bool, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty type pattern", ErrBadConfig)
	}
	if strings.HasPrefix(pattern, "^") {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
		}
		return re.MatchString, nil
	}
	return func(typeName string) bool {
		return strings.HasPrefix(typeName, pattern)
	}, nil
}

// fieldPath follows a dotted member path such as "impl.start".
func fieldPath(ctx context.Context, v symbolgroup.Value, path string) (symbolgroup.Value, error) {
	for _, name := range strings.Split(path, ".") {
		var err error
		if v, err = v.Field(ctx, name); err != nil {
			return symbolgroup.Value{}, err
		}
	}
	return v, nil
}

// itemsValue is the one-line value of containers.
func itemsValue(n int) string {
	if n < 0 {
		return "<...>"
	}
	return fmt.Sprintf("<%d items>", n)
}
