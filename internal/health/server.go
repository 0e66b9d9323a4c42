package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker holds the probes reported by /healthz. Nil probes are skipped.
// RPCPing usually comes from a MultiChecker over every upstream endpoint.
type Checker struct {
	DBPing    func(ctx context.Context) error
	RPCPing   func(ctx context.Context) error
	CachePing func(ctx context.Context) error
}

func (c Checker) probes() []probe {
	return []probe{
		{"db", c.DBPing},
		{"rpc", c.RPCPing},
		{"cache", c.CachePing},
	}
}

type probe struct {
	name string
	ping func(ctx context.Context) error
}

// Serve starts a minimal /healthz handler.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		for _, p := range checker.probes() {
			if p.ping == nil {
				continue
			}
			if err := p.ping(ctx); err != nil {
				status[p.name] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status[p.name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
