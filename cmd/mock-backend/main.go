// Command mock-backend runs an echo upstream for exercising the gateway.
// Every request is answered with a JSON description of what arrived,
// including the identity headers the gateway forwards.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/", handleEcho)

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type echoResponse struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Query    string            `json:"query,omitempty"`
	Headers  map[string]string `json:"headers"`
	Identity echoIdentity      `json:"identity"`
	BodySize int64             `json:"body_size"`
}

type echoIdentity struct {
	Subject string `json:"subject,omitempty"`
	Tenant  string `json:"tenant,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Scopes  string `json:"scopes,omitempty"`
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	n, _ := io.Copy(io.Discard, r.Body)

	resp := echoResponse{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: make(map[string]string, len(r.Header)),
		Identity: echoIdentity{
			Subject: r.Header.Get("X-Authenticated-Subject"),
			Tenant:  r.Header.Get("X-Tenant-ID"),
			Tier:    r.Header.Get("X-Service-Tier"),
			Scopes:  r.Header.Get("X-Authenticated-Scopes"),
		},
		BodySize: n,
	}
	for k := range r.Header {
		resp.Headers[k] = r.Header.Get(k)
	}

	slog.Debug("echo", "method", r.Method, "path", r.URL.Path, "subject", resp.Identity.Subject)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
