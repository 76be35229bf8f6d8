package bootstrap

import (
	"fmt"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"
)

// OutcomeKind tags the result of one synthesize-refit-gate pass.
type OutcomeKind int

const (
	Accepted OutcomeKind = iota
	Rejected
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is produced once per loop pass. Parameters and Fitted are set
// only when Kind is Accepted; Reason only when Rejected. Err carries the
// failure when Failed and a QUALITY_GATE_REJECTION error when Rejected.
type Outcome struct {
	Kind       OutcomeKind
	Parameters []model.Parameter
	Fitted     *timeseries.Timeseries
	RedChi     float64
	Reason     string
	Err        error
}

func acceptedOutcome(params []model.Parameter, fitted *timeseries.Timeseries, redchi float64) Outcome {
	return Outcome{Kind: Accepted, Parameters: params, Fitted: fitted, RedChi: redchi}
}

func rejectedOutcome(redchi float64, reason string) Outcome {
	return Outcome{Kind: Rejected, RedChi: redchi, Reason: reason, Err: apperrors.QualityGateRejection(reason)}
}

func failedOutcome(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}

// Gate applies the quality test to a refit: it passes only when a parameter
// vector was produced and redchi <= maxChisqMult * baseChisq.
func Gate(params []model.Parameter, redchi, baseChisq, maxChisqMult float64) (bool, string) {
	if len(params) == 0 {
		return false, "refit produced no parameters"
	}
	limit := maxChisqMult * baseChisq
	if !(redchi <= limit) {
		return false, fmt.Sprintf("redchi %.4g exceeds %.4g", redchi, limit)
	}
	return true, ""
}
