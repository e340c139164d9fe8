package direction

import (
	"math"

	"github.com/copyleftdev/descent/internal/optimization/curvature"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Gradient is steepest descent, d = -g. With bounds it is the projected
// gradient method, d = P(x - g) - x.
type Gradient struct {
	Bounds *projection.Bounds
}

func (g *Gradient) Name() string {
	if g.Bounds != nil {
		return "projected_gradient"
	}
	return "gradient"
}

func (g *Gradient) Init(State) error { return nil }

func (g *Gradient) Direction(s State) (*Proposal, error) {
	return &Proposal{Direction: steepest(g.Bounds, s)}, nil
}

func (g *Gradient) Update(State, State) curvature.Status { return curvature.NoUpdate }

// Coordinate moves along the single coordinate with the largest gradient
// magnitude, d = -gᵢeᵢ. In a box only free coordinates are considered.
type Coordinate struct {
	Bounds *projection.Bounds
}

func (c *Coordinate) Name() string { return "coordinate" }

func (c *Coordinate) Init(State) error { return nil }

func (c *Coordinate) Direction(s State) (*Proposal, error) {
	g := projection.ProjectedGradient(c.Bounds, s.X, s.Eval.Gradient)
	best, max := 0, -1.0
	for i, gi := range g {
		if a := math.Abs(gi); a > max {
			best, max = i, a
		}
	}
	v := make([]float64, len(g))
	v[best] = -g[best]
	return ensureDescent(c.Bounds, s, &Proposal{Direction: feasible(c.Bounds, s.X, v)}), nil
}

func (c *Coordinate) Update(State, State) curvature.Status { return curvature.NoUpdate }
