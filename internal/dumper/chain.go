package dumper

import (
	"context"
	"fmt"
	"io"

	"github.com/dshills/symtree/internal/symbolgroup"
)

// Chain is an ordered list of dumpers. The first matching dumper that
// accepts a value formats it.
type Chain struct {
	dumpers []TypeDumper
	closers []io.Closer
}

var _ symbolgroup.Dumper = (*Chain)(nil)

// NewChain creates a chain.
func NewChain(dumpers ...TypeDumper) *Chain {
	return &Chain{dumpers: dumpers}
}

// Add appends dumpers with the lowest precedence.
func (c *Chain) Add(dumpers ...TypeDumper) {
	c.dumpers = append(c.dumpers, dumpers...)
}

// Dumpers returns the dumpers in precedence order.
func (c *Chain) Dumpers() []TypeDumper { return c.dumpers }

// Lookup returns the first dumper matching typeName or nil.
func (c *Chain) Lookup(typeName string) TypeDumper {
	for _, d := range c.dumpers {
		if d.Matches(typeName) {
			return d
		}
	}
	return nil
}

// SimpleFormat implements symbolgroup.Dumper.
func (c *Chain) SimpleFormat(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) (symbolgroup.SimpleResult, bool, error) {
	for _, d := range c.dumpers {
		if !d.Matches(v.Type()) {
			continue
		}
		res, ok, err := d.SimpleFormat(ctx, v, vc)
		if err != nil {
			return symbolgroup.SimpleResult{}, false, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if ok {
			return res, true, nil
		}
	}
	return symbolgroup.SimpleResult{}, false, nil
}

// ComplexFormat implements symbolgroup.Dumper. The first matching dumper
// producing children wins.
func (c *Chain) ComplexFormat(ctx context.Context, v symbolgroup.Value, vc symbolgroup.ValueContext) ([]symbolgroup.ChildSpec, error) {
	for _, d := range c.dumpers {
		if !d.Matches(v.Type()) {
			continue
		}
		specs, err := d.ComplexFormat(ctx, v, vc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if len(specs) > 0 {
			return specs, nil
		}
	}
	return nil, nil
}

// Close releases script states owned by the chain.
func (c *Chain) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
