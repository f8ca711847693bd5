package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as the error envelope. Client errors keep their
// message; server errors get the generic public message and the cause is
// logged with any Postgres error fields.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if pkgerrors.IsClient(typed.Code()) {
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		if meta.HTTPStatus >= http.StatusInternalServerError {
			dump := pkgerrors.Dump(err)
			logCtx := logg.WithFields(ctx, map[string]any{
				"error_code":    dump.Code,
				"error_chain":   dump.Chain,
				"pg_code":       dump.PGCode,
				"pg_detail":     dump.PGDetail,
				"pg_message":    dump.PGMessage,
				"pg_table":      dump.PGTable,
				"pg_column":     dump.PGColumn,
				"pg_constraint": dump.PGConstraint,
			})
			logg.Error(logCtx, "request.error", err)
		} else {
			logCtx := logg.WithFields(ctx, map[string]any{
				"error_code": string(typed.Code()),
				"status":     meta.HTTPStatus,
			})
			logg.Info(logCtx, "request.rejected: "+msg)
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
