package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type samplePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type samplesRequest struct {
	Metric string `json:"metric"`
	Limit  int    `json:"limit"`
}

type controlCommand struct {
	Action     string         `json:"action"`
	MetricName string         `json:"metric_name"`
	Parameters map[string]any `json:"parameters"`
	Rollback   bool           `json:"rollback"`
}

// baselines drive the synthetic metric generator. avg_latency_ms trends high
// so the sentinel has something to alert on during local runs.
var baselines = map[string]struct {
	mean   float64
	jitter float64
	spike  float64
}{
	"avg_latency_ms":      {mean: 250, jitter: 40, spike: 2200},
	"p95_latency_ms":      {mean: 900, jitter: 120, spike: 4000},
	"error_rate":          {mean: 0.02, jitter: 0.01, spike: 0.4},
	"failed_requests":     {mean: 3, jitter: 2, spike: 120},
	"total_cost":          {mean: 14, jitter: 2, spike: 95},
	"cost_per_request":    {mean: 0.004, jitter: 0.001, spike: 0.05},
	"requests_per_minute": {mean: 1200, jitter: 150, spike: 200},
}

func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/sentinel/samples", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req samplesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Limit <= 0 {
			req.Limit = 20
		}

		base, ok := baselines[req.Metric]
		if !ok {
			base.mean, base.jitter = 10, 1
		}

		points := make([]samplePoint, 0, req.Limit)
		now := time.Now()
		for i := req.Limit - 1; i >= 0; i-- {
			value := base.mean + (rng.Float64()*2-1)*base.jitter
			// one-in-twelve ticks spike the newest sample
			if i == 0 && base.spike > 0 && rng.Intn(12) == 0 {
				value = base.spike
			}
			points = append(points, samplePoint{
				Timestamp: now.Add(-time.Duration(i) * 30 * time.Second),
				Value:     value,
			})
		}
		writeJSON(w, map[string]any{"samples": points})
	})

	mux.HandleFunc("/api/v1/sentinel/control", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var cmd controlCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"action":     cmd.Action,
				"metric":     cmd.MetricName,
				"rollback":   cmd.Rollback,
				"applied_at": time.Now().UTC().Format(time.RFC3339),
			},
		})
	})

	logger := log.New(log.Writer(), "core-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
