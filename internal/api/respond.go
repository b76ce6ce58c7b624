package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/switchboard/internal/inbox"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func logRequest(r *http.Request) *zerolog.Logger {
	return hlog.FromRequest(r)
}

// errorStatus maps an inbox error kind to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inbox.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, inbox.ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, inbox.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inbox.ErrDispatchFailed):
		return http.StatusBadGateway, "dispatch_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError writes err as a JSON error body. Internal errors are logged and not echoed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logRequest(r).Error().Err(err).Msg("Request failed")
		message = "internal error"
	case http.StatusBadGateway:
		message = "failed to send message"
	}

	respondJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondCacheable writes v with an ETag and answers 304 when the client already holds it.
func respondCacheable(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		respondError(w, r, err)
		return
	}

	etag := generateETag(data)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func generateETag(data []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(data)
	return `"` + base58.Encode(h.Sum(nil)) + `"`
}

// etagMatches reports whether an If-None-Match value names etag, using weak comparison.
// The suffix added to compressed representations is ignored.
func etagMatches(header, etag string) bool {
	want := opaqueTag(etag)
	if header == "" || want == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || opaqueTag(candidate) == want {
			return true
		}
	}
	return false
}

func opaqueTag(tag string) string {
	tag = strings.TrimPrefix(tag, "W/")
	tag = strings.TrimSuffix(tag, gzipETagSuffix)
	tag = strings.TrimSuffix(strings.TrimPrefix(tag, `"`), `"`)
	return strings.TrimSuffix(tag, gzipETagSuffix)
}
