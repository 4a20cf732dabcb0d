package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as an ErrorResponse. Causes go to the log only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs payload.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, payload.ErrorResponse{
			Error:   apperror.ErrValidationFailed.Message,
			Code:    apperror.ErrValidationFailed.Code,
			Details: verrs,
		})
		return
	}

	appErr := apperror.From(err)

	logger := hlog.FromRequest(r)
	switch appErr.Kind {
	case apperror.KindInternal, apperror.KindUnavailable:
		logger.Error().Err(err).Str("code", appErr.Code).Msg("request failed")
	default:
		logger.Debug().Err(err).Str("code", appErr.Code).Msg("request rejected")
	}

	writeJSON(w, appErr.HTTPStatus(), payload.ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// decodeAndValidate reads a JSON body into dst and validates it.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *payload.Validator, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ErrValidationFailed.
			WithMessage("request body must be valid JSON").
			Wrap(fmt.Errorf("decode body: %w", err))
	}

	return v.Validate(dst)
}
