package fl

import "errors"

var (
	ErrNoUpdates             = errors.New("no updates provided for aggregation")
	ErrIncompatibleWeights   = errors.New("weight collections do not share the same structure")
	ErrDuplicateContribution = errors.New("contributor already added weights this round")
	ErrRoundClosed           = errors.New("round already aggregated")
	ErrNoLayers              = errors.New("no layers to initialize")
	ErrInvalidShape          = errors.New("invalid layer shape")
)
