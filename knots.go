package mfa

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// NAWWeight marks a duplicated odd-degree phantom control point in a
// T-mesh tensor that must be skipped during decoding and error analysis.
// Ordinary weights are non-negative, so -Inf can never collide with a
// real weight and needs no separate "is valid" flag.
var NAWWeight = math.Inf(-1)

// IsNAW reports whether w is the NAW sentinel.
func IsNAW(w float64) bool { return math.IsInf(w, -1) }

// KnotVector holds one dimension's non-decreasing knot sequence, together
// with the refinement level that introduced each knot. paramIdx runs
// parallel to knots but is left at zero: neither initKnots nor
// insertKnotLevel fills it, and the adaptive refiner does not read it.
type KnotVector struct {
	knots    []float64
	levels   []int
	paramIdx []int
}

// Len returns the number of knots.
func (kv *KnotVector) Len() int { return len(kv.knots) }

// TensorProduct is a rectangular sub-region of the T-mesh: a range of
// knot indices per dimension, its control points and weights, and the
// refinement round that created it.
type TensorProduct struct {
	knotMins []int
	knotMaxs []int
	nctrlPts []int
	ctrlPts  *mat.Dense // rows = product(nctrlPts), row-major, dim 0 fastest
	weights  []float64
	level    int
}

// NCtrlPts returns the number of control points per dimension.
func (t *TensorProduct) NCtrlPts() []int { return append([]int{}, t.nctrlPts...) }

// TotCtrlPts returns the total number of control points in the tensor.
func (t *TensorProduct) TotCtrlPts() int {
	n := 1
	for _, c := range t.nctrlPts {
		n *= c
	}
	return n
}

// Tmesh owns all knot vectors and the ordered list of tensor products for
// a Model. Mutated only during construction and refinement; read-only
// during encoding and decoding.
type Tmesh struct {
	dim       int
	p         Degree
	unclamped bool
	knots     []KnotVector
	tensors   []*TensorProduct
	curLevel  int
	rangeMin  int
	rangeMax  int
}

func newTmesh(dim int, p Degree, unclamped bool) *Tmesh {
	return &Tmesh{dim: dim, p: append(Degree{}, p...), unclamped: unclamped}
}

// initKnots creates per-dimension clamped (or, with UnclampedKnots,
// single-end) knot sequences of length nctrlPts[k]+p[k]+1 at level 0,
// uniformly spaced over [0,1].
func (tm *Tmesh) initKnots(nctrlPts []int) {
	tm.knots = make([]KnotVector, tm.dim)
	for k := 0; k < tm.dim; k++ {
		p := tm.p[k]
		n := nctrlPts[k]
		length := n + p + 1
		knots := make([]float64, length)
		mult := p + 1
		if tm.unclamped {
			mult = 1
		}

		nInterior := length - 2*mult
		for i := 0; i < mult; i++ {
			knots[i] = 0
			knots[length-1-i] = 1
		}
		if nInterior > 0 {
			step := 1.0 / float64(nInterior+1)
			for i := 0; i < nInterior; i++ {
				knots[mult+i] = step * float64(i+1)
			}
		}

		levels := make([]int, length)
		tm.knots[k] = KnotVector{knots: knots, levels: levels, paramIdx: make([]int, length)}
	}
}

// appendTensor creates a new tensor product spanning [knotMins[k],
// knotMaxs[k]] in every dimension, deriving nctrlPts[k] from the count of
// level-matching knots in that range, and appends it to the T-mesh's
// tensor list.
func (tm *Tmesh) appendTensor(knotMins, knotMaxs []int) (*TensorProduct, error) {
	if len(knotMins) != tm.dim || len(knotMaxs) != tm.dim {
		return nil, fmt.Errorf("mfa: appendTensor: %w", ErrDimMismatch)
	}

	level := tm.curLevel
	nctrlPts := make([]int, tm.dim)
	for k := 0; k < tm.dim; k++ {
		count := 0
		for i := knotMins[k]; i <= knotMaxs[k]; i++ {
			if tm.knots[k].levels[i] <= level {
				count++
			}
		}
		nctrlPts[k] = count - tm.p[k] - 1
		if nctrlPts[k] < 1 {
			nctrlPts[k] = 1
		}
	}

	total := 1
	for _, c := range nctrlPts {
		total *= c
	}
	ptDim := tm.maxDim() - tm.minDim() + 1
	if ptDim < 1 {
		ptDim = 1
	}

	t := &TensorProduct{
		knotMins: append([]int{}, knotMins...),
		knotMaxs: append([]int{}, knotMaxs...),
		nctrlPts: nctrlPts,
		ctrlPts:  mat.NewDense(total, ptDim, nil),
		weights:  oneFilled(total),
		level:    level,
	}
	tm.tensors = append(tm.tensors, t)
	return t, nil
}

// minDim/maxDim are placeholders overridden by the owning Model through
// SetRangeDim; a bare Tmesh (as used by tests) defaults to a single
// output coordinate.
func (tm *Tmesh) minDim() int { return tm.rangeMin }
func (tm *Tmesh) maxDim() int { return tm.rangeMax }

// SetRangeDim records how many output coordinates each control point
// carries, used only to size newly appended tensors.
func (tm *Tmesh) SetRangeDim(minDim, maxDim int) {
	tm.rangeMin = minDim
	tm.rangeMax = maxDim
}

func oneFilled(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}
	return w
}

// anchors returns, for each dimension, the ordered, de-duplicated knot
// indices whose basis function support covers param at any level present
// in the T-mesh. This is the union, across levels, of the [span-p, span]
// window obtained from the level-aware FindSpan walk; ties across levels
// are resolved by keeping every distinct index (duplicates removed) so
// callers can test individual control-point anchors for membership with
// inAnchors.
func (tm *Tmesh) anchorsAt(param []float64) ([][]int, error) {
	out := make([][]int, tm.dim)
	for k := 0; k < tm.dim; k++ {
		u := param[k]
		kv := &tm.knots[k]
		levelsPresent := map[int]bool{}
		for _, l := range kv.levels {
			levelsPresent[l] = true
		}
		seen := map[int]bool{}
		var idxs []int
		for lvl := range levelsPresent {
			span := findSpanAtLevel(kv, tm.p[k], u, lvl)
			for i := span - tm.p[k]; i <= span; i++ {
				if i >= 0 && i < kv.Len() && !seen[i] {
					seen[i] = true
					idxs = append(idxs, i)
				}
			}
		}
		if len(idxs) == 0 {
			return nil, fmt.Errorf("mfa: anchorsAt: dim %d: %w", k, ErrNoAnchor)
		}
		sort.Ints(idxs)
		out[k] = idxs
	}
	return out, nil
}

// inAnchors reports whether the knot index anchor appears in the anchor
// set anchors for the same dimension.
func inAnchors(anchor int, anchors []int) bool {
	for _, a := range anchors {
		if a == anchor {
			return true
		}
	}
	return false
}

// ctrlPtAnchor computes the anchor (per-dimension knot index) of a local
// control point multi-index ijk within tensor: the global index of that
// control point's basis function, i.e. the first knot of its support,
// consistent with anchorsAt's [span-p, span] convention (documented
// decision for the otherwise-unspecified T-mesh anchor geometry; see
// DESIGN.md).
func (tm *Tmesh) ctrlPtAnchor(t *TensorProduct, ijk []int) []int {
	anchor := make([]int, tm.dim)
	for k := 0; k < tm.dim; k++ {
		anchor[k] = t.knotMins[k] + ijk[k]
	}
	return anchor
}
