package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/apperr"
	"tagexceptions/src/auth"
	"tagexceptions/src/dispatcher"
	"tagexceptions/src/model"
)

const maxBodyBytes = 1 << 20

// RequestDispatcher runs raw invocation events.
type RequestDispatcher interface {
	Handle(ctx context.Context, raw []byte) dispatcher.Response
}

type Historian interface {
	History(ctx context.Context, resourceID string) ([]model.TaggingException, error)
}

// InvokeHandler accepts a raw invocation event, the same shape the function
// receives from its event source, and replies with the dispatcher response.
func InvokeHandler(d RequestDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logger.WithError(err).Warn("failed to read invocation body")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		resp := d.Handle(r.Context(), raw)
		writeJSON(w, resp.StatusCode, resp.Body)
	}
}

type createPayload struct {
	ResourceARN string `json:"resource_arn"`
	Reason      string `json:"reason"`
	TTL         string `json:"ttl"`
	RequestedBy string `json:"requested_by"`
}

// CreateExceptionHandler creates an exception from a JSON body.
func CreateExceptionHandler(d RequestDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createPayload
		if !decodePayload(w, r, &payload) {
			return
		}

		if payload.RequestedBy == "" {
			payload.RequestedBy, _ = auth.GetRequesterFromContext(r.Context())
		}

		event := dispatcher.Event{
			Action:      string(dispatcher.ActionCreateException),
			ResourceARN: payload.ResourceARN,
			Reason:      payload.Reason,
			TTL:         payload.TTL,
			RequestedBy: payload.RequestedBy,
		}
		dispatchEvent(w, r, d, event)
	}
}

type revokePayload struct {
	ResourceARN string `json:"resource_arn"`
	Reason      string `json:"reason"`
}

// RevokeExceptionHandler revokes the active exception of a resource.
func RevokeExceptionHandler(d RequestDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload revokePayload
		if !decodePayload(w, r, &payload) {
			return
		}

		event := dispatcher.Event{
			Action:      string(dispatcher.ActionRevokeException),
			ResourceARN: payload.ResourceARN,
			Reason:      payload.Reason,
		}
		dispatchEvent(w, r, d, event)
	}
}

// ExceptionHistoryHandler lists every exception recorded for ?resource_arn=.
func ExceptionHistoryHandler(h Historian) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.History(r.Context(), r.URL.Query().Get("resource_arn"))
		if err != nil {
			kind := apperr.KindOf(err)
			msg := "internal error"
			var e *apperr.Error
			if errors.As(err, &e) && kind != apperr.KindInternal {
				msg = e.Message
			}
			if kind.StatusCode() >= http.StatusInternalServerError {
				logger.WithError(err).Error("failed to load exception history")
			}
			writeJSON(w, kind.StatusCode(), dispatcher.Body{Error: msg, Retryable: kind.Retryable()})
			return
		}

		writeJSON(w, http.StatusOK, recs)
	}
}

func decodePayload(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		logger.WithError(err).Warn("invalid exception payload")
		writeJSON(w, http.StatusBadRequest, dispatcher.Body{Error: "Invalid payload"})
		return false
	}
	return true
}

func dispatchEvent(w http.ResponseWriter, r *http.Request, d RequestDispatcher, event dispatcher.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dispatcher.Body{Error: "internal error"})
		return
	}

	resp := d.Handle(r.Context(), raw)
	writeJSON(w, resp.StatusCode, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
