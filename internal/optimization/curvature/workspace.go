package curvature

import "gonum.org/v1/gonum/mat"

// Workspace provides reusable vectors to reduce allocations in updates.
// It is not safe for concurrent use; each approximation owns one.
type Workspace struct {
	vecs []*mat.VecDense
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{vecs: make([]*mat.VecDense, 0, 4)}
}

// GetVecDense returns a zeroed vector of length n from the pool or creates a new one
func (w *Workspace) GetVecDense(n int) *mat.VecDense {
	for i := len(w.vecs) - 1; i >= 0; i-- {
		v := w.vecs[i]
		if v.Len() != n {
			continue
		}
		w.vecs = append(w.vecs[:i], w.vecs[i+1:]...)
		v.Zero()
		return v
	}
	return mat.NewVecDense(n, nil)
}

// PutVecDense returns vectors to the pool
func (w *Workspace) PutVecDense(vs ...*mat.VecDense) {
	w.vecs = append(w.vecs, vs...)
}

// load copies x into a pooled vector.
func (w *Workspace) load(x []float64) *mat.VecDense {
	v := w.GetVecDense(len(x))
	for i, xi := range x {
		v.SetVec(i, xi)
	}
	return v
}
