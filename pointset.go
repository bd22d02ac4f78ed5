package mfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PointSet is the input to FixedEncode: a collection of samples, each a full
// row of [domain position, range value(s)], together with the
// parameterization (one coordinate per domain dimension) assigned to
// every sample. A structured PointSet lies on a regular grid (ndomPts
// gives its shape, dimension 0 fastest); an unstructured one carries an
// explicit parameter vector per sample and can be decoded at, but
// FixedEncode rejects it with ErrUnstructuredInput.
type PointSet struct {
	domDim     int
	structured bool
	ndomPts    []int // structured only, length domDim

	domain *mat.Dense // nPoints x pointDim

	paramsStructured []Parameterization // structured only, length domDim
	paramsPoint      [][]float64        // unstructured only, one vector per row

	minDim, maxDim int
}

// NewStructuredPointSet builds a PointSet over a regular grid of shape
// ndomPts (row-major, dimension 0 fastest). domain must have
// product(ndomPts) rows. Coordinates [minDim, maxDim] of each row are the
// values FixedEncode fits; curveParamsOn selects chord-length parameterization
// over uniform.
func NewStructuredPointSet(ndomPts []int, domain *mat.Dense, minDim, maxDim int, curveParamsOn bool) (*PointSet, error) {
	domDim := len(ndomPts)
	if domDim == 0 {
		return nil, fmt.Errorf("mfa: NewStructuredPointSet: %w", ErrEmptyDegree)
	}
	total := 1
	for _, n := range ndomPts {
		total *= n
	}
	if domain.RawMatrix().Rows != total {
		return nil, fmt.Errorf("mfa: NewStructuredPointSet: %w", ErrDimMismatch)
	}
	if maxDim < minDim || maxDim >= domain.RawMatrix().Cols {
		return nil, fmt.Errorf("mfa: NewStructuredPointSet: %w", ErrDimMismatch)
	}

	params := make([]Parameterization, domDim)
	for k := 0; k < domDim; k++ {
		var vals []float64
		if curveParamsOn {
			vals = curveParams(domain, ndomPts, k, minDim, maxDim)
		} else {
			vals = uniformParams(ndomPts[k])
		}
		params[k] = Parameterization{values: vals}
	}

	return &PointSet{
		domDim:           domDim,
		structured:       true,
		ndomPts:          append([]int{}, ndomPts...),
		domain:           domain,
		paramsStructured: params,
		minDim:           minDim,
		maxDim:           maxDim,
	}, nil
}

// NewUnstructuredPointSet builds a scattered PointSet: one explicit
// parameter vector per row of domain. Every vector must have domDim
// entries.
func NewUnstructuredPointSet(domDim int, params [][]float64, domain *mat.Dense, minDim, maxDim int) (*PointSet, error) {
	if domDim == 0 {
		return nil, fmt.Errorf("mfa: NewUnstructuredPointSet: %w", ErrEmptyDegree)
	}
	if len(params) != domain.RawMatrix().Rows {
		return nil, fmt.Errorf("mfa: NewUnstructuredPointSet: %w", ErrDimMismatch)
	}
	for i, pv := range params {
		if len(pv) != domDim {
			return nil, fmt.Errorf("mfa: NewUnstructuredPointSet: row %d: %w", i, ErrDimMismatch)
		}
	}
	if maxDim < minDim || maxDim >= domain.RawMatrix().Cols {
		return nil, fmt.Errorf("mfa: NewUnstructuredPointSet: %w", ErrDimMismatch)
	}

	return &PointSet{
		domDim:      domDim,
		structured:  false,
		domain:      domain,
		paramsPoint: params,
		minDim:      minDim,
		maxDim:      maxDim,
	}, nil
}

// NPoints returns the total number of input samples.
func (ps *PointSet) NPoints() int { return ps.domain.RawMatrix().Rows }

// Structured reports whether the point set lies on a regular grid.
func (ps *PointSet) Structured() bool { return ps.structured }

// NDomPts returns the structured grid shape, or an empty slice for an
// unstructured point set.
func (ps *PointSet) NDomPts() []int { return append([]int{}, ps.ndomPts...) }

// Domain exposes the raw input rows.
func (ps *PointSet) Domain() *mat.Dense { return ps.domain }

// paramAt returns the domDim-length parameter vector for input sample
// sampleIdx.
func (ps *PointSet) paramAt(sampleIdx int) ([]float64, error) {
	n := ps.NPoints()
	if sampleIdx < 0 || sampleIdx >= n {
		return nil, fmt.Errorf("mfa: paramAt: %w", ErrDimMismatch)
	}
	if !ps.structured {
		return ps.paramsPoint[sampleIdx], nil
	}
	idx := multiIndex(sampleIdx, ps.ndomPts)
	out := make([]float64, ps.domDim)
	for k := 0; k < ps.domDim; k++ {
		out[k] = ps.paramsStructured[k].values[idx[k]]
	}
	return out, nil
}

// dimParams returns the structured per-dimension Parameterization for
// dimension k. Valid only for structured point sets.
func (ps *PointSet) dimParams(k int) *Parameterization { return &ps.paramsStructured[k] }
