package httpremote

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/synckit"
)

// Authority is the server side of the sync protocol: it accepts or rejects
// single-entity writes and serves its full dataset.
type Authority[D any] interface {
	// Put stores value under id and returns what was stored. Returning a
	// *synckit.Rejection answers the push with HTTP 422.
	Put(ctx context.Context, id string, value D) (D, error)

	// All returns the full dataset.
	All(ctx context.Context) (map[string]D, error)
}

// Handler serves an Authority over HTTP:
//
//	PUT /entities/{id}  push one entity
//	GET /entities       fetch the full dataset
type Handler[D, E any] struct {
	authority Authority[D]
	logger    *slog.Logger
	options   *ServerOptions
	mux       *http.ServeMux
}

// NewHandler creates a handler for authority.
func NewHandler[D, E any](authority Authority[D], logger *slog.Logger, opts ...ServerOption) *Handler[D, E] {
	if logger == nil {
		logger = logging.Default().Logger
	}
	h := &Handler[D, E]{
		authority: authority,
		logger:    logger.With("component", component),
		options:   applyServerOptions(opts...),
	}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("PUT /entities/{id}", h.handlePut)
	h.mux.HandleFunc("GET /entities", h.handleFetch)
	return h
}

func (h *Handler[D, E]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.options.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.options.RequestTimeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler[D, E]) handlePut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.respondWithError(w, r, http.StatusBadRequest, "missing entity id")
		return
	}

	body, cleanup, err := requestReader(w, r, h.options)
	defer cleanup()
	if err != nil {
		h.logger.Warn("Rejected push body", slog.String("entity_id", id), slog.String("error", err.Error()))
		h.respondWithError(w, r, statusFor(err), err.Error())
		return
	}

	var value D
	if err := json.NewDecoder(body).Decode(&value); err != nil {
		status := http.StatusBadRequest
		var maxBytesErr *http.MaxBytesError
		if errors.Is(err, errDecompressedTooLarge) || errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
		}
		h.respondWithError(w, r, status, "invalid JSON: "+err.Error())
		return
	}

	stored, err := h.authority.Put(r.Context(), id, value)
	if err != nil {
		var rejection *synckit.Rejection[E]
		if errors.As(err, &rejection) {
			message := ""
			if rejection.Err != nil {
				message = rejection.Err.Error()
			}
			h.logger.Info("Entity rejected", slog.String("entity_id", id), slog.String("message", message))
			h.respondWithJSON(w, r, http.StatusUnprocessableEntity, rejectionResponse[E]{Error: rejection.Payload, Message: message})
			return
		}
		h.logger.Error("Failed to store entity", slog.String("entity_id", id), slog.String("error", err.Error()))
		h.respondWithError(w, r, statusForAuthority(err), err.Error())
		return
	}

	h.respondWithJSON(w, r, http.StatusOK, stored)
}

func (h *Handler[D, E]) handleFetch(w http.ResponseWriter, r *http.Request) {
	entities, err := h.authority.All(r.Context())
	if err != nil {
		h.logger.Error("Failed to load entities", slog.String("error", err.Error()))
		h.respondWithError(w, r, statusForAuthority(err), err.Error())
		return
	}
	if entities == nil {
		entities = map[string]D{}
	}
	h.respondWithJSON(w, r, http.StatusOK, snapshotResponse[D]{Entities: entities})
}

// statusForAuthority maps an authority error to an HTTP status code.
func statusForAuthority(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case syncErrors.IsKind(err, syncErrors.KindInvalid):
		return http.StatusBadRequest
	case syncErrors.IsKind(err, syncErrors.KindNotFound):
		return http.StatusNotFound
	case syncErrors.IsKind(err, syncErrors.KindRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler[D, E]) respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	h.write(w, r, code, marshalError(message))
}

func (h *Handler[D, E]) respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
		h.write(w, r, http.StatusInternalServerError, marshalError("failed to encode response"))
		return
	}
	h.write(w, r, code, response)
}

// write sends body, gzipped when the client accepts it and the body is
// above the compression threshold.
func (h *Handler[D, E]) write(w http.ResponseWriter, r *http.Request, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")

	if h.options.CompressionEnabled &&
		int64(len(body)) >= h.options.CompressionThreshold &&
		strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(body); err == nil && gw.Close() == nil {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Vary", "Accept-Encoding")
			w.WriteHeader(code)
			_, _ = io.Copy(w, &buf)
			return
		}
		h.logger.Warn("Failed to compress response, sending uncompressed")
	}

	w.WriteHeader(code)
	_, _ = w.Write(body)
}
