package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-finance/api/middleware"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Level: zerolog.Disabled, Output: io.Discard})
}

type reqOpts struct {
	body     string
	params   map[string]string
	operator string
	vendor   string
}

func newRequest(method, target string, opts reqOpts) *http.Request {
	var body io.Reader
	if opts.body != "" {
		body = strings.NewReader(opts.body)
	}
	req := httptest.NewRequest(method, target, body)
	if opts.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := req.Context()
	if len(opts.params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range opts.params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	if opts.operator != "" {
		ctx = middleware.WithOperatorID(ctx, opts.operator)
	}
	if opts.vendor != "" {
		ctx = middleware.WithVendorID(ctx, opts.vendor)
	}
	return req.WithContext(ctx)
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}
