package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/km-arc/go-container/framework/app"
	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
	"github.com/km-arc/go-container/framework/routing"
)

// Connection stands in for an expensive client built on first use.
type Connection struct {
	DSN string `json:"dsn"`
}

func main() {
	application, err := app.New() // loads .env automatically
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}
	logger := application.Logger()
	defer func() { _ = logger.Sync() }()

	// ── Services ─────────────────────────────────────────────────────────────

	application.Defer("db", func(c *container.Container) (container.Producer, error) {
		cfg, err := container.Resolve[*config.Config](c, "config")
		if err != nil {
			return container.Producer{}, err
		}
		dsn := config.Get("DB_DSN", "sqlite://"+cfg.App.Name+".db")
		return container.Func(func(*container.Container) (any, error) {
			logger.Info("opening connection", zap.String("dsn", dsn))
			return &Connection{DSN: dsn}, nil
		}), nil
	})

	// ── Routes ───────────────────────────────────────────────────────────────

	handler, err := application.Handler()
	if err != nil {
		logger.Fatal("boot failed", zap.Error(err))
	}
	r := application.Router()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"services": application.Identifiers()})
	})

	r.Prefix("/api/v1", func(api *routing.Router) {
		api.Get("/db", func(w http.ResponseWriter, req *http.Request) {
			conn, err := routing.Resolve[*Connection](req, "db")
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, conn)
		})
	})

	addr := ":" + application.Config().App.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", application.Environment()))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
