package api

import (
	"net/http"

	"github.com/absmach/hubnspoke/pkg/api"
	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
)

var (
	_ api.Response = (*listRoundsRes)(nil)
	_ api.Response = (*roundRes)(nil)
	_ api.Response = (*checkpointRes)(nil)
	_ api.Response = (*reportRes)(nil)
)

type ok struct{}

func (ok) Code() int {
	return http.StatusOK
}

func (ok) Headers() map[string]string {
	return map[string]string{}
}

func (ok) Empty() bool {
	return false
}

type listRoundsRes struct {
	ok
	Total  int      `json:"total"`
	Rounds []string `json:"rounds"`
}

type roundRes struct {
	ok
	fl.RoundSummary
}

type checkpointRes struct {
	ok
	checkpoint.Summary
}

type reportRes struct {
	ok
	report.Report
}

// MarshalJSON keeps the flat report layout of the file on disk.
func (r reportRes) MarshalJSON() ([]byte, error) {
	return r.Report.MarshalJSON()
}
