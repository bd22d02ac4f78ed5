// Package mfa provides a CPU implementation of multivariate functional
// approximation (MFA): fitting a compact rational tensor-product B-spline
// (NURBS) surrogate to a structured grid of samples, and
// evaluating the fitted surrogate and its derivatives anywhere in
// parameter space.
//
// The model is built in two steps: construct a [Model] with the desired
// polynomial degree and control-point counts, then call [Model.FixedEncode]
// or [Model.AdaptiveEncode] with a [PointSet] of input samples. Once
// encoded, [Model.DecodePoint] and [Model.DecodeDomain] evaluate the fitted
// surrogate.
package mfa

import (
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/mat"
)

// Degree holds the polynomial degree in each domain dimension. Immutable
// after a Model is constructed.
type Degree []int

// Logger receives numerical warnings (zero rational denominators,
// degenerate eigenvalues, etc.) that the engine absorbs with a documented
// fallback rather than treating as fatal. NewModel installs a discarding
// logger unless WithLogger supplies one.
type Logger interface {
	Warnf(format string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Warnf(string, ...any) {}

// Model is the per-surrogate parameter/knot bundle: polynomial degree,
// the T-mesh of knots and tensor products, and the coordinate range
// [MinDim, MaxDim] of the input rows this model fits. It plays the role
// of MFA_Data in the reference design.
type Model struct {
	domDim int
	p      Degree
	minDim int
	maxDim int

	tmesh *Tmesh

	weighAllDims   bool
	useTmesh       bool
	noWeights      bool
	unclampedKnots bool
	curveParams    bool
	maxRounds      int
	workers        int
	logger         Logger

	encoded bool
}

// Option configures a Model at construction time.
type Option func(*Model)

// WithWeighAllDims applies control-point weights to every output
// coordinate instead of only the last (range) coordinate. The T-mesh
// decode path normalizes every coordinate whether or not this is set.
func WithWeighAllDims() Option { return func(m *Model) { m.weighAllDims = true } }

// WithTmesh enables the hierarchical T-mesh decode path. Adaptive
// refinement does not run on such a model: refineOnce, and so
// AdaptiveEncode, returns ErrTmeshNotSupported.
func WithTmesh() Option { return func(m *Model) { m.useTmesh = true } }

// WithNoWeights disables the weight solver; all control points use unit weight.
func WithNoWeights() Option { return func(m *Model) { m.noWeights = true } }

// WithUnclampedKnots permits single (non-repeated) knots at the domain ends.
func WithUnclampedKnots() Option { return func(m *Model) { m.unclampedKnots = true } }

// WithCurveParams records a preference for chord-length parameterization.
// The Model does not read it: knots are always placed uniformly, and the
// parameterization of samples is chosen by NewStructuredPointSet's
// curveParamsOn argument.
func WithCurveParams() Option { return func(m *Model) { m.curveParams = true } }

// WithMaxRounds caps the number of adaptive-refinement rounds. Zero means
// unbounded.
func WithMaxRounds(n int) Option { return func(m *Model) { m.maxRounds = n } }

// WithConcurrency sets the number of workers used for fork-join loops over
// independent curves or points. A value <= 1 forces single-threaded
// execution.
func WithConcurrency(n int) Option { return func(m *Model) { m.workers = n } }

// WithLogger installs a Logger to receive numerical warnings.
func WithLogger(l Logger) Option { return func(m *Model) { m.logger = l } }

// NewModel constructs a Model for the given degree, one entry per domain
// dimension. If nctrlPts is nil or empty, the minimum p[k]+1 control
// points per dimension are used.
func NewModel(degree Degree, nctrlPts []int, minDim, maxDim int, opts ...Option) (*Model, error) {
	domDim := len(degree)
	if domDim == 0 {
		return nil, fmt.Errorf("mfa: NewModel: %w", ErrEmptyDegree)
	}
	for k, pk := range degree {
		if pk < 0 {
			return nil, fmt.Errorf("mfa: NewModel: dim %d: %w", k, ErrNegativeDegree)
		}
	}

	if len(nctrlPts) == 0 {
		nctrlPts = make([]int, domDim)
		for k, pk := range degree {
			nctrlPts[k] = pk + 1
		}
	}
	if len(nctrlPts) != domDim {
		return nil, fmt.Errorf("mfa: NewModel: %w", ErrDimMismatch)
	}
	for k, pk := range degree {
		if nctrlPts[k] <= pk {
			return nil, fmt.Errorf("mfa: NewModel: dim %d: %w", k, ErrTooFewCtrlPts)
		}
	}

	m := &Model{
		domDim:  domDim,
		p:       append(Degree{}, degree...),
		minDim:  minDim,
		maxDim:  maxDim,
		workers: runtime.GOMAXPROCS(0),
		logger:  discardLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.tmesh = newTmesh(domDim, m.p, m.unclampedKnots)
	m.tmesh.SetRangeDim(minDim, maxDim)
	m.tmesh.initKnots(nctrlPts)
	mins := make([]int, domDim)
	maxs := make([]int, domDim)
	for k := range maxs {
		maxs[k] = len(m.tmesh.knots[k].knots) - 1
	}
	if _, err := m.tmesh.appendTensor(mins, maxs); err != nil {
		return nil, err
	}

	return m, nil
}

// DomDim returns the number of domain (parameter) dimensions.
func (m *Model) DomDim() int { return m.domDim }

// Degree returns the polynomial degree in each dimension.
func (m *Model) Degree() Degree { return append(Degree{}, m.p...) }

// Tmesh exposes the underlying knot/tensor structure. Mutating the
// returned value outside of Model's own methods is not supported.
func (m *Model) Tmesh() *Tmesh { return m.tmesh }

func (m *Model) firstTensor() *TensorProduct { return m.tmesh.tensors[0] }

// DecodePoint evaluates the fitted model at a single parameter value,
// returning one output row (length MaxDim-MinDim+1).
func (m *Model) DecodePoint(param []float64) ([]float64, error) {
	if !m.encoded {
		return nil, fmt.Errorf("mfa: DecodePoint: %w", ErrNotEncoded)
	}
	if len(param) != m.domDim {
		return nil, fmt.Errorf("mfa: DecodePoint: %w", ErrDimMismatch)
	}
	dec := newDecoder(m)
	if m.useTmesh {
		return dec.tmeshVolPt(param)
	}
	out, _, err := dec.volPt(param, m.firstTensor(), nil)
	return out, err
}

// DecodeGradient evaluates the fitted model's value and gradient at a
// single parameter value using the fast n-mode-product path. Requires a
// single-tensor, unweighted (NoWeights) model.
func (m *Model) DecodeGradient(param []float64) (val []float64, grad *mat.Dense, err error) {
	if !m.encoded {
		return nil, nil, fmt.Errorf("mfa: DecodeGradient: %w", ErrNotEncoded)
	}
	if m.useTmesh {
		return nil, nil, fmt.Errorf("mfa: DecodeGradient: %w", ErrTmeshNotSupported)
	}
	if !m.noWeights {
		return nil, nil, fmt.Errorf("mfa: DecodeGradient: %w", ErrWeightsNotSupported)
	}
	dec := newDecoder(m)
	fdi := newFastDecodeInfo(m, 1)
	return dec.fastGrad(param, fdi, m.firstTensor())
}

// DecodeDomain evaluates the model over every input parameter of ps,
// coordinates [minDim, maxDim] only, returning one row per input point.
// If derivs is non-nil it must have one entry per domain dimension,
// giving the derivative order to take in that dimension.
func (m *Model) DecodeDomain(ps *PointSet, minDim, maxDim int, savedBasis bool, derivs []int) (*mat.Dense, error) {
	if !m.encoded {
		return nil, fmt.Errorf("mfa: DecodeDomain: %w", ErrNotEncoded)
	}
	if derivs != nil && len(derivs) != m.domDim {
		return nil, fmt.Errorf("mfa: DecodeDomain: %w", ErrDerivSizeMismatch)
	}
	dec := newDecoder(m)
	return dec.decodePointSet(ps, minDim, maxDim, savedBasis, derivs)
}

// AbsCoordError decodes the model at the parameter of input sample
// sampleIdx and returns the absolute per-coordinate error against the
// stored input value.
func (m *Model) AbsCoordError(ps *PointSet, sampleIdx int) ([]float64, error) {
	if !m.encoded {
		return nil, fmt.Errorf("mfa: AbsCoordError: %w", ErrNotEncoded)
	}
	param, err := ps.paramAt(sampleIdx)
	if err != nil {
		return nil, err
	}
	decoded, err := m.DecodePoint(param)
	if err != nil {
		return nil, err
	}
	actual := ps.domain.RawRowView(sampleIdx)
	n := m.maxDim - m.minDim + 1
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = abs(decoded[i] - actual[m.minDim+i])
	}
	return out, nil
}

// BasisFunctionAt evaluates the i-th basis function of dimension dim
// directly against the model's own knot vector at parameter value u,
// independent of any tensor or span cache. A diagnostic entry point
// mirroring the single-function evaluation overload of the reference
// design, useful for plotting or spot-checking a fitted basis.
func (m *Model) BasisFunctionAt(dim, i int, u float64) (float64, error) {
	if dim < 0 || dim >= m.domDim {
		return 0, fmt.Errorf("mfa: BasisFunctionAt: %w", ErrDimMismatch)
	}
	kv := &m.tmesh.knots[dim]
	p := m.p[dim]
	if i < 0 || i+p+1 >= kv.Len() {
		return 0, fmt.Errorf("mfa: BasisFunctionAt: %w", ErrParamOutOfRange)
	}
	return OneBasisFunIdx(kv.knots, p, i, u), nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
