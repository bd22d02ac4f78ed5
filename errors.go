package mfa

import "errors"

// Sentinel errors for precondition violations (section 7: these always
// propagate to the caller rather than being absorbed).
var (
	ErrEmptyDegree         = errors.New("mfa: degree must have at least one dimension")
	ErrNegativeDegree      = errors.New("mfa: degree must be non-negative")
	ErrDimMismatch         = errors.New("mfa: dimension count mismatch")
	ErrTooFewCtrlPts       = errors.New("mfa: nctrl_pts must exceed degree")
	ErrTooManyCtrlPts      = errors.New("mfa: nctrl_pts exceeds number of input points; compression impossible")
	ErrNotEncoded          = errors.New("mfa: model has not been encoded")
	ErrDerivSizeMismatch   = errors.New("mfa: derivs vector size does not match domain dimension")
	ErrParamOutOfRange     = errors.New("mfa: parameter value outside tensor knot range")
	ErrLevelMismatch       = errors.New("mfa: knot level mismatch")
	ErrDuplicateKnot       = errors.New("mfa: cannot insert a knot that already exists at this level")
	ErrNoAnchor            = errors.New("mfa: parameter not covered by any knot anchor")
	ErrTmeshNotSupported   = errors.New("mfa: operation does not support T-mesh models")
	ErrWeightsNotSupported = errors.New("mfa: operation requires a NoWeights model")
	ErrUnstructuredInput   = errors.New("mfa: operation requires a structured input point set")
	ErrEigenFailed         = errors.New("mfa: eigendecomposition failed")
)
