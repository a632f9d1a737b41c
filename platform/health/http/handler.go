package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Check проверка одной зависимости (postgres, redis)
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler возвращает readiness handler: 200 {"status":"ok"}, если все проверки прошли,
// иначе 503 {"status":"not ready"} с ошибкой каждой упавшей проверки.
// Без проверок handler работает как liveness.
func Handler(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := response{Status: "ok"}
		code := http.StatusOK

		for _, c := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := c.Fn(ctx); err != nil {
				resp.Checks[c.Name] = err.Error()
				resp.Status = "not ready"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
