package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-finance/api/middleware"
	"github.com/angelmondragon/packfinderz-finance/api/validators"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/pagination"
)

func operatorID(r *http.Request) (uuid.UUID, error) {
	return identity(middleware.OperatorIDFromContext(r.Context()), "operator identity required")
}

func vendorID(r *http.Request) (uuid.UUID, error) {
	return identity(middleware.VendorIDFromContext(r.Context()), "vendor identity required")
}

func identity(raw, msg string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	}
	return id, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}
