package mfa

import (
	"errors"
	"fmt"
	"sort"
)

// RefineResult reports the outcome of one AdaptiveEncode iteration.
type RefineResult int

const (
	// RefineConverged means no span was split: every span's local error
	// is within the requested tolerance, or no over-tolerance span can be
	// split. AdaptiveEncode also returns it when the WithMaxRounds cap is
	// reached.
	RefineConverged RefineResult = iota
	// RefineSplit means a span was split and the caller should re-encode.
	RefineSplit
	// RefineCompressionLimit means the tensor already has as many
	// control points as input samples; further splitting cannot improve
	// compression and was refused.
	RefineCompressionLimit
)

func coordExtents(ps *PointSet, minDim, maxDim int) []float64 {
	width := maxDim - minDim + 1
	mins := make([]float64, width)
	maxs := make([]float64, width)
	for c := 0; c < width; c++ {
		mins[c] = ps.domain.At(0, minDim+c)
		maxs[c] = mins[c]
	}
	for r := 1; r < ps.NPoints(); r++ {
		for c := 0; c < width; c++ {
			v := ps.domain.At(r, minDim+c)
			if v < mins[c] {
				mins[c] = v
			}
			if v > maxs[c] {
				maxs[c] = v
			}
		}
	}
	ext := make([]float64, width)
	for c := 0; c < width; c++ {
		ext[c] = maxs[c] - mins[c]
	}
	return ext
}

// refineOnce analyzes the current single-tensor fit's local error against
// ps and, if any knot span's worst per-sample normalized error exceeds
// maxErr, inserts a midpoint knot splitting the worst such span that
// still leaves at least one input parameter on each side of the split
// (the degenerate-split guard). It reports RefineSplit when a split was
// made, RefineConverged when every span is within tolerance or no
// over-tolerance span passes the degenerate-split guard, and
// RefineCompressionLimit when the tensor already has as many control
// points as the input has samples.
func (m *Model) refineOnce(ps *PointSet, maxErr float64) (RefineResult, error) {
	if m.useTmesh {
		return RefineConverged, fmt.Errorf("mfa: refineOnce: %w", ErrTmeshNotSupported)
	}

	t := m.firstTensor()
	n := ps.NPoints()
	if t.TotCtrlPts() >= n {
		return RefineCompressionLimit, nil
	}

	extents := coordExtents(ps, m.minDim, m.maxDim)
	params := make([][]float64, n)
	errs := make([]float64, n)
	for i := 0; i < n; i++ {
		param, err := ps.paramAt(i)
		if err != nil {
			return RefineConverged, err
		}
		params[i] = param
		decoded, err := m.DecodePoint(param)
		if err != nil {
			return RefineConverged, err
		}
		maxE := 0.0
		for c, ext := range extents {
			if ext == 0 {
				ext = 1
			}
			e := abs(decoded[c]-ps.domain.At(i, m.minDim+c)) / ext
			if e > maxE {
				maxE = e
			}
		}
		errs[i] = maxE
	}

	for k := 0; k < m.domDim; k++ {
		kv := &m.tmesh.knots[k]
		spanLo := t.knotMins[k] + m.p[k]
		spanHi := t.knotMaxs[k] - m.p[k] - 1

		worst := map[int]float64{}
		for i := 0; i < n; i++ {
			span, err := m.tmesh.findSpanTensor(k, params[i][k], t)
			if err != nil {
				continue
			}
			if errs[i] > worst[span] {
				worst[span] = errs[i]
			}
		}

		var flagged []int
		for span := spanLo; span <= spanHi; span++ {
			if worst[span] > maxErr {
				flagged = append(flagged, span)
			}
		}
		sort.Slice(flagged, func(a, b int) bool { return worst[flagged[a]] > worst[flagged[b]] })

		for _, span := range flagged {
			lo, hi := kv.knots[span], kv.knots[span+1]
			mid := (lo + hi) / 2

			hasLow, hasHigh := false, false
			for i := 0; i < n; i++ {
				s, err := m.tmesh.findSpanTensor(k, params[i][k], t)
				if err != nil || s != span {
					continue
				}
				if params[i][k] < mid {
					hasLow = true
				} else {
					hasHigh = true
				}
			}
			if !hasLow || !hasHigh {
				continue
			}

			if err := m.tmesh.InsertKnot(t, k, mid); err != nil {
				if errors.Is(err, ErrDuplicateKnot) {
					continue
				}
				return RefineConverged, err
			}
			return RefineSplit, nil
		}
	}

	return RefineConverged, nil
}
