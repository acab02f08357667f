// Package modality decides whether a reply should be rendered as an
// image instead of text. Decision strategies run as an ordered chain;
// the first strategy with an opinion wins.
package modality

import (
	"context"

	"github.com/parley-dev/parley/internal/observability"
)

// Decision is the outcome of the modality check for one turn.
type Decision struct {
	UseImage    bool   `json:"useImage"`
	ImagePrompt string `json:"imagePrompt"`
}

// Input carries the material a strategy may inspect.
type Input struct {
	// UserInput is the raw text of the user's turn.
	UserInput string
	// CandidateText is the assistant's already-generated text reply.
	CandidateText string
}

// Strategy inspects one turn and either returns a decision or defers
// to the next strategy by returning nil.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, in Input) (*Decision, error)
}

// Chain runs strategies in order. A strategy error is logged and
// skipped; if nothing decides, the turn stays in text.
type Chain struct {
	strategies []Strategy
}

// NewChain creates a decision chain from the given strategies
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Decide runs the chain. It never fails: a failing or undecided chain
// resolves to a plain text reply.
func (c *Chain) Decide(ctx context.Context, in Input) Decision {
	for _, s := range c.strategies {
		d, err := s.Decide(ctx, in)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("modality strategy failed",
				"strategy", s.Name(), "error", err)
			continue
		}
		if d != nil {
			return *d
		}
	}
	return Decision{}
}
