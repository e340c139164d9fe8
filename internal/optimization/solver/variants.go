package solver

import (
	"fmt"
	"strings"
)

// LineSearchKind selects the step length strategy.
type LineSearchKind int

const (
	LineSearchMoreThuente LineSearchKind = iota
	LineSearchBacktracking
	LineSearchNonmonotone
	LineSearchFixed
	// LineSearchProjected backtracks along the projection arc P(x + αd).
	// Without bounds it is LineSearchBacktracking.
	LineSearchProjected
)

var lineSearchNames = map[LineSearchKind]string{
	LineSearchMoreThuente:  "more_thuente",
	LineSearchBacktracking: "backtracking",
	LineSearchNonmonotone:  "nonmonotone",
	LineSearchFixed:        "fixed",
	LineSearchProjected:    "projected_backtracking",
}

// DirectionKind selects the search direction strategy.
type DirectionKind int

const (
	DirectionQuasiNewton DirectionKind = iota
	DirectionGradient
	DirectionCoordinate
	DirectionPNorm
	DirectionNewton
	DirectionSpectral
	// DirectionOSGM learns a diagonal scaling online; DirectionOSGMFull a
	// dense one.
	DirectionOSGM
	DirectionOSGMFull
)

var directionNames = map[DirectionKind]string{
	DirectionQuasiNewton: "quasi_newton",
	DirectionGradient:    "gradient",
	DirectionCoordinate:  "coordinate",
	DirectionPNorm:       "pnorm",
	DirectionNewton:      "newton",
	DirectionSpectral:    "spectral",
	DirectionOSGM:        "osgm",
	DirectionOSGMFull:    "osgm_full",
}

// CurvatureKind selects the quasi-Newton update used by DirectionQuasiNewton.
type CurvatureKind int

const (
	CurvatureBFGS CurvatureKind = iota
	CurvatureDFP
	CurvatureBroyden
	CurvatureSR1
	CurvatureLBFGS
)

var curvatureNames = map[CurvatureKind]string{
	CurvatureBFGS:    "bfgs",
	CurvatureDFP:     "dfp",
	CurvatureBroyden: "broyden",
	CurvatureSR1:     "sr1",
	CurvatureLBFGS:   "lbfgs",
}

func (k LineSearchKind) String() string { return name(lineSearchNames, k) }
func (k DirectionKind) String() string  { return name(directionNames, k) }
func (k CurvatureKind) String() string  { return name(curvatureNames, k) }

// ParseLineSearch parses a line search name such as "more_thuente".
func ParseLineSearch(s string) (LineSearchKind, error) {
	return parse(lineSearchNames, "line search", s)
}

// ParseDirection parses a direction name such as "quasi_newton".
func ParseDirection(s string) (DirectionKind, error) {
	return parse(directionNames, "direction", s)
}

// ParseCurvature parses a curvature update name such as "bfgs".
func ParseCurvature(s string) (CurvatureKind, error) {
	return parse(curvatureNames, "curvature update", s)
}

func (k LineSearchKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k DirectionKind) MarshalText() ([]byte, error)  { return []byte(k.String()), nil }
func (k CurvatureKind) MarshalText() ([]byte, error)  { return []byte(k.String()), nil }

func (k *LineSearchKind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseLineSearch(string(b))
	return err
}

func (k *DirectionKind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseDirection(string(b))
	return err
}

func (k *CurvatureKind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseCurvature(string(b))
	return err
}

func name[K ~int](names map[K]string, k K) string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", k)
}

func parse[K ~int](names map[K]string, what, s string) (K, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, v := range names {
		if v == norm {
			return k, nil
		}
	}
	var zero K
	return zero, fmt.Errorf("unknown %s %q", what, s)
}
