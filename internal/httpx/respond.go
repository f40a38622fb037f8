package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw sends a body that was serialized earlier, unchanged.
func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeData(w http.ResponseWriter, r *http.Request, code int, msg string, data, page any) {
	env, err := apperr.Success(msg, data, CorrelationID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	env.Pagination = page
	writeJSON(w, code, env)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, apperr.HTTPStatus(kind), apperr.FailureEnvelope(err, CorrelationID(r.Context())))
}

func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return apperr.Validation("request body is required")
	}
	if err != nil {
		return apperr.Validation("request body must be valid JSON")
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("request body must be valid JSON")
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id must be a positive integer")
	}
	return id, nil
}
