package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/apperr"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrBusinessRule:
		return http.StatusConflict
	case apperr.ErrValidation:
		return http.StatusBadRequest
	case apperr.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps classified errors to their status code. Anything else is a
// 500 whose detail stays in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger(r).WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{
		Error:     apperr.Message(err),
		Kind:      apperr.Label(err),
		RequestID: requestIDFrom(r.Context()),
	})
}

var errBadJSON = apperr.Validation("invalid JSON body")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body required")
		}
		return errBadJSON
	}
	return nil
}

func (s *Server) logger(r *http.Request) logrus.FieldLogger {
	return s.log.WithField("request_id", requestIDFrom(r.Context()))
}
