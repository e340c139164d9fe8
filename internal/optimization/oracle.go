package optimization

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Oracle evaluates the objective. It must be deterministic: line searches
// query nearby points repeatedly.
type Oracle interface {
	Evaluate(x []float64) (*Evaluation, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(x []float64) (*Evaluation, error)

// Evaluate calls f(x).
func (f OracleFunc) Evaluate(x []float64) (*Evaluation, error) {
	return f(x)
}

// ValueGradFunc returns the objective value and writes the gradient into grad.
type ValueGradFunc func(grad, x []float64) float64

// FromValueGrad builds an Oracle from a combined value/gradient function.
func FromValueGrad(fn ValueGradFunc) Oracle {
	return OracleFunc(func(x []float64) (*Evaluation, error) {
		grad := make([]float64, len(x))
		value := fn(grad, x)
		return &Evaluation{Value: value, Gradient: grad}, nil
	})
}

// problemOracle evaluates a gonum optimize.Problem.
type problemOracle struct {
	problem optimize.Problem
}

// FromProblem adapts a gonum optimize.Problem. Func and Grad are required;
// Hess is used when present.
func FromProblem(p optimize.Problem) (Oracle, error) {
	if p.Func == nil {
		return nil, NewError(InvalidSettings, "problem has no objective function").
			WithComponent("oracle").WithOperation("from_problem")
	}
	if p.Grad == nil {
		return nil, NewError(InvalidSettings, "problem has no gradient").
			WithComponent("oracle").WithOperation("from_problem")
	}
	return &problemOracle{problem: p}, nil
}

func (o *problemOracle) Evaluate(x []float64) (*Evaluation, error) {
	n := len(x)
	eval := &Evaluation{
		Value:    o.problem.Func(x),
		Gradient: make([]float64, n),
	}
	o.problem.Grad(eval.Gradient, x)
	if o.problem.Hess != nil {
		eval.Hessian = mat.NewSymDense(n, nil)
		o.problem.Hess(eval.Hessian, x)
	}
	if o.problem.Status != nil {
		if _, err := o.problem.Status(); err != nil {
			return nil, WrapError(err, EvaluationFailed, "problem status reported an error")
		}
	}
	return eval, nil
}

// CountingOracle counts evaluations of the wrapped oracle.
type CountingOracle struct {
	Oracle Oracle
	Count  int
}

// Evaluate forwards to the wrapped oracle.
func (c *CountingOracle) Evaluate(x []float64) (*Evaluation, error) {
	c.Count++
	return c.Oracle.Evaluate(x)
}
