package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/period"
)

const (
	codeInvalidPayload     = "invalid_payload"
	codeInvalidInput       = "invalid_input"
	codeStorageUnavailable = "storage_unavailable"
	codeCatalogUnavailable = "catalog_unavailable"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeInternal           = "internal_error"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type envelope struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Status: "error",
		Error: &apiError{
			Code:      code,
			Message:   message,
			RequestID: middleware.RequestIDFromContext(r.Context()),
		},
	})
}

type periodResponse struct {
	Period        string `json:"period"`
	Label         string `json:"label"`
	Start         string `json:"start"`
	End           string `json:"end"`
	OffsetMinutes int    `json:"offset_minutes"`
}

func newPeriodResponse(r period.Range) periodResponse {
	return periodResponse{
		Period:        string(r.Period),
		Label:         r.Label,
		Start:         r.Start.UTC().Format(time.RFC3339),
		End:           r.End.UTC().Format(time.RFC3339),
		OffsetMinutes: r.OffsetMinutes,
	}
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
