// Package objectives is a catalog of named benchmark objectives used by the
// solve service and the CLI. Most entries are the classic test functions
// of gonum's optimize/functions package.
package objectives

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/projection"
)

// Objective describes one catalog entry.
type Objective struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Dim         int       `json:"dim"`
	Start       []float64 `json:"start"`
	// Minimum is the optimal value; Minimizer is nil when no closed form is known.
	Minimum   float64            `json:"minimum"`
	Minimizer []float64          `json:"minimizer,omitempty"`
	Bounds    *projection.Bounds `json:"bounds,omitempty"`
	// Hessian reports whether the oracle provides second derivatives.
	Hessian bool `json:"hessian"`

	problem optimize.Problem
}

// Oracle returns an oracle evaluating the objective.
func (o *Objective) Oracle() (optimization.Oracle, error) {
	return optimization.FromProblem(o.problem)
}

// StartPoint returns a copy of the default start point.
func (o *Objective) StartPoint() []float64 {
	return append([]float64(nil), o.Start...)
}

type function interface {
	Func(x []float64) float64
	Grad(grad, x []float64)
}

type hessian interface {
	Hess(dst *mat.SymDense, x []float64)
}

func fromFunction(fn function) optimize.Problem {
	p := optimize.Problem{
		Func: fn.Func,
		Grad: fn.Grad,
	}
	if h, ok := fn.(hessian); ok {
		p.Hess = h.Hess
	}
	return p
}

func entry(name, desc string, fn function, start []float64, minimum float64, minimizer []float64) *Objective {
	p := fromFunction(fn)
	return &Objective{
		Name:        name,
		Description: desc,
		Dim:         len(start),
		Start:       start,
		Minimum:     minimum,
		Minimizer:   minimizer,
		Hessian:     p.Hess != nil,
		problem:     p,
	}
}

var catalog = map[string]*Objective{}

func register(o *Objective) {
	if _, ok := catalog[o.Name]; ok {
		panic("objectives: duplicate objective " + o.Name)
	}
	catalog[o.Name] = o
}

func init() {
	register(entry("rosenbrock", "Rosenbrock banana valley",
		functions.ExtendedRosenbrock{}, []float64{-1.2, 1}, 0, []float64{1, 1}))
	register(entry("beale", "Beale function",
		functions.Beale{}, []float64{1, 1}, 0, []float64{3, 0.5}))
	register(entry("wood", "Wood four-variable function",
		functions.Wood{}, []float64{-3, -1, -3, -1}, 0, []float64{1, 1, 1, 1}))
	register(entry("powell_badly_scaled", "Powell badly scaled function",
		functions.PowellBadlyScaled{}, []float64{0, 1}, 0, []float64{1.0981593296997149e-05, 9.106146739867375}))
	register(entry("brown_badly_scaled", "Brown badly scaled function",
		functions.BrownBadlyScaled{}, []float64{1, 1}, 0, []float64{1e6, 2e-6}))
	register(entry("helical_valley", "Fletcher-Powell helical valley",
		functions.HelicalValley{}, []float64{-1, 0, 0}, 0, []float64{1, 0, 0}))

	register(quadratic("quadratic", 10))

	box := shiftedQuadratic("box_quadratic", 10, 2)
	box.Bounds, _ = projection.Uniform(box.Dim, 0, 1)
	box.Minimum = float64(box.Dim)
	box.Minimizer = fill(box.Dim, 1)
	register(box)
}

// Lookup returns the objective registered under name.
func Lookup(name string) (*Objective, error) {
	o, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q", name)
	}
	return o, nil
}

// Names lists the catalog in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every objective sorted by name.
func All() []*Objective {
	names := Names()
	out := make([]*Objective, len(names))
	for i, name := range names {
		out[i] = catalog[name]
	}
	return out
}

func fill(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}
