package report

import "errors"

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrMetricsMismatch = errors.New("round metrics do not match the stored report")
	ErrReservedKey     = errors.New("metric key is reserved")
	ErrInvalidNodeName = errors.New("invalid node name")
)
