package api

import (
	"context"
	"errors"

	"github.com/absmach/hubnspoke/pkg/api"
	pkgerrors "github.com/absmach/hubnspoke/pkg/errors"
	"github.com/go-kit/kit/endpoint"
)

var errNoCheckpoint = errors.New("no checkpoint has been saved yet")

func listRoundsEndpoint(src Sources) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		if err := validate(request); err != nil {
			return nil, errors.Join(api.ErrValidation, err)
		}

		ids, err := src.History.ListRounds()
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}

		return listRoundsRes{Total: len(ids), Rounds: ids}, nil
	}
}

func getRoundEndpoint(src Sources) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return nil, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return nil, errors.Join(api.ErrValidation, err)
		}

		summary, err := src.History.LoadRound(req.id)
		if err != nil {
			return nil, err
		}

		return roundRes{RoundSummary: summary}, nil
	}
}

func getCheckpointEndpoint(src Sources) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if err := validate(request); err != nil {
			return nil, errors.Join(api.ErrValidation, err)
		}

		cpt, err := src.Checkpoints.Load(ctx)
		if err != nil {
			return nil, err
		}
		if cpt == nil {
			return nil, errors.Join(pkgerrors.ErrNotFound, errNoCheckpoint)
		}

		return checkpointRes{Summary: cpt.Summarize()}, nil
	}
}

func getReportEndpoint(src Sources) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return nil, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return nil, errors.Join(api.ErrValidation, err)
		}

		rep, err := src.Reports.Get(req.id)
		if err != nil {
			return nil, err
		}

		return reportRes{Report: rep}, nil
	}
}
