package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-finance/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-finance/pkg/redis"
	"github.com/angelmondragon/packfinderz-finance/pkg/types"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	// StandardReplayWindow covers state changes that move no money.
	StandardReplayWindow = 24 * time.Hour
	// MoneyReplayWindow covers payouts and refund approvals.
	MoneyReplayWindow = 7 * 24 * time.Hour

	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL    = 2 * time.Minute
	maxIdemKeySize = 255
)

// IdempotencyStore is the Redis surface used to persist replayable responses.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// idempotencyRecord is stored first as an in-flight marker and then replaced with
// the captured response.
type idempotencyRecord struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotent requires an Idempotency-Key on the wrapped route and replays the first
// response for window. A repeat with a different body, or one that arrives while
// the first is still running, is a conflict. Server errors and responses marked
// retryable are not stored so the caller can retry with the same key. A nil store
// disables the check.
func Idempotent(store IdempotencyStore, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" || len(clientKey) > maxIdemKeySize {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (max 255 characters)"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r, body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			marker, _ := json.Marshal(idempotencyRecord{InFlight: true, RequestHash: hash})

			claimed, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, key, hash, w, logg)
				return
			}

			// Detached so a client disconnect cannot strand the in-flight marker.
			saveCtx := context.WithoutCancel(ctx)
			release := func() {
				if err := store.Del(saveCtx, key); err != nil {
					logg.Error(saveCtx, "release idempotency key", err)
				}
			}

			rec := &responseCapture{ResponseWriter: w}
			finished := false
			defer func() {
				// A panicking handler never reaches the code below.
				if !finished {
					release()
				}
			}()
			next.ServeHTTP(rec, r)
			finished = true

			if transient(rec) {
				release()
				return
			}
			stored, _ := json.Marshal(idempotencyRecord{
				RequestHash: hash,
				Status:      rec.statusOrOK(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
			})
			if err := store.Set(saveCtx, key, string(stored), window); err != nil {
				logg.Error(saveCtx, "persist idempotency record", err)
			}
		})
	}
}

// transient reports whether a response asks the caller to try again, in which
// case it must not become the key's final answer.
func transient(rec *responseCapture) bool {
	status := rec.statusOrOK()
	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return true
	case status < http.StatusBadRequest:
		return false
	case rec.Header().Get("Retry-After") != "":
		return true
	}
	var envelope types.ErrorEnvelope
	return json.Unmarshal(rec.body.Bytes(), &envelope) == nil && envelope.Error.Retryable
}

func replay(ctx context.Context, store IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if pkgredis.IsNil(err) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key expired mid-request; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused with a different request"))
	case record.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		body, err := base64.StdEncoding.DecodeString(record.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
			return
		}
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(body)
	}
}

// idempotencyScope keeps keys from colliding across callers and endpoints.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{
		OperatorIDFromContext(r.Context()),
		VendorIDFromContext(r.Context()),
		r.Method,
		strings.TrimSuffix(r.URL.Path, "/"),
	}, "|")
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.URL.RawQuery))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
