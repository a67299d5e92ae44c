package api

import (
	"github.com/absmach/hubnspoke/pkg/api"
	pkgerrors "github.com/absmach/hubnspoke/pkg/errors"
)

type entityReq struct {
	id string
}

func (e entityReq) validate() error {
	if e.id == "" {
		return pkgerrors.ErrEmptyKey
	}

	return nil
}

type listReq struct{}

func (listReq) validate() error {
	return nil
}

type validator interface {
	validate() error
}

func validate(req any) error {
	v, ok := req.(validator)
	if !ok {
		return api.ErrValidation
	}

	return v.validate()
}
