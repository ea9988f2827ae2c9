package apphttp

import (
	"encoding/json"
	"net/http"

	"github.com/fitcalc/site-backend/internal/httpx"
)

type errorResp struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError はリクエストIDがあれば応答に含め、問い合わせ時にログと突き合わせられるようにします。
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResp{
		Error:     http.StatusText(status),
		Message:   msg,
		RequestID: httpx.RequestIDFromCtx(r.Context()),
	})
}
