package args

import (
	"context"
	"fmt"
	"strings"

	"voxelhooks.dev/internal/protocol"
)

type Param struct {
	// Name defaults to the consumer's DefaultName.
	Name     string
	Consumer Consumer
}

// Pipeline runs a fixed list of consumers over one command line.
type Pipeline struct {
	params []Param
}

func NewPipeline(params ...Param) (*Pipeline, error) {
	seen := map[string]bool{}
	out := make([]Param, 0, len(params))
	for _, p := range params {
		if p.Consumer == nil {
			return nil, fmt.Errorf("pipeline: nil consumer for %q", p.Name)
		}
		if p.Name == "" {
			p.Name = p.Consumer.DefaultName()
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("pipeline: duplicate argument name %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return &Pipeline{params: out}, nil
}

// Run consumes every parameter in order. Leftover tokens are a parse error.
func (p *Pipeline) Run(ctx context.Context, sender Sender, tokens []string) (ConsumedArgs, error) {
	raw := NewRawArgs(tokens)
	out := make(ConsumedArgs, len(p.params))
	for _, param := range p.params {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := param.Consumer.Consume(ctx, sender, raw)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", param.Name, err)
		}
		out[param.Name] = v
	}
	if raw.Len() > 0 {
		rest := tokens[len(tokens)-raw.Len():]
		return nil, fmt.Errorf("%w: unexpected trailing input %q", ErrParse, strings.Join(rest, " "))
	}
	return out, nil
}

// Parse splits a command line on whitespace and runs it.
func (p *Pipeline) Parse(ctx context.Context, sender Sender, line string) (ConsumedArgs, error) {
	return p.Run(ctx, sender, strings.Fields(line))
}

// Hints describes the parameters for client-side parsing and completion.
func (p *Pipeline) Hints() []protocol.ArgumentHint {
	out := make([]protocol.ArgumentHint, 0, len(p.params))
	for _, param := range p.params {
		h := protocol.ArgumentHint{Name: param.Name, Parser: param.Consumer.ClientParser()}
		if sp, ok := param.Consumer.SuggestionProvider(); ok {
			h.Suggestions = sp
		}
		out = append(out, h)
	}
	return out
}

// Suggest completes the parameter named name.
func (p *Pipeline) Suggest(ctx context.Context, sender Sender, name, input string) ([]protocol.Suggestion, error) {
	for _, param := range p.params {
		if param.Name == name {
			return param.Consumer.Suggest(ctx, sender, input)
		}
	}
	return nil, &InvalidConsumptionError{Name: name}
}
