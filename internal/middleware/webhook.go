// Package middleware содержит HTTP middleware сервиса партнёрского учёта.
package middleware

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultSecretHeader задаёт заголовок с общим секретом вебхука по умолчанию.
const DefaultSecretHeader = "X-Webhook-Secret"

// WebhookSecret проверяет общий секрет шлюза до чтения тела запроса.
// Пустой секрет отключает проверку.
type WebhookSecret struct {
	header string
	secret []byte
}

// NewWebhookSecret создаёт проверку секрета. Пустой header заменяется DefaultSecretHeader.
func NewWebhookSecret(header, secret string) *WebhookSecret {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultSecretHeader
	}
	return &WebhookSecret{
		header: header,
		secret: []byte(secret),
	}
}

// Enabled сообщает, настроен ли секрет.
func (m *WebhookSecret) Enabled() bool {
	return m != nil && len(m.secret) > 0
}

// Middleware отклоняет запрос с кодом 401, если секрет не совпал.
func (m *WebhookSecret) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(m.header)
		if !hmac.Equal([]byte(got), m.secret) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeError пишет ошибку в том же JSON-конверте, что и обработчики.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := map[string]any{
		"status": "error",
		"error": map[string]string{
			"code":       code,
			"message":    message,
			"request_id": RequestIDFromContext(r.Context()),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
