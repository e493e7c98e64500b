package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	s := New(Config{Addr: "127.0.0.1:0"}, h, slog.Default())
	addr, err := s.Listen()
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	resp, err := http.Get("http://" + addr.String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v after graceful shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}

func TestServer_ListenError(t *testing.T) {
	s := New(Config{Addr: "256.0.0.1:bad"}, http.NotFoundHandler(), nil)
	if _, err := s.Listen(); err == nil {
		t.Error("expected listen error for invalid address")
	}
}

func TestConfig_TLSEnabled(t *testing.T) {
	if (Config{TLSCertFile: "c"}).TLSEnabled() {
		t.Error("cert without key should not enable TLS")
	}
	if !(Config{TLSCertFile: "c", TLSKeyFile: "k"}).TLSEnabled() {
		t.Error("cert and key should enable TLS")
	}
}
