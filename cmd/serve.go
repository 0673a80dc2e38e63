package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP lookup server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, registry, err := buildResolver(cfg)
		if err != nil {
			return err
		}

		cache := gocache.New(
			time.Duration(cfg.Server.CacheTTLSecs)*time.Second,
			time.Duration(cfg.Server.CacheSweepMin)*time.Minute,
		)

		router := chi.NewRouter()
		router.Use(middleware.RequestID)
		router.Use(middleware.Recoverer)
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
		}))

		router.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":  "ok",
				"sources": registry.Len(),
			})
		})

		router.Get("/v1/resolve", func(w http.ResponseWriter, req *http.Request) {
			qc, err := parseQuery(req)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}

			key := cacheKey(qc)
			if cached, ok := cache.Get(key); ok {
				writeJSON(w, http.StatusOK, cached)
				return
			}

			res, err := r.Resolve(req.Context(), qc)
			if err != nil {
				zap.L().Error("resolve failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolution failed"})
				return
			}

			cache.SetDefault(key, res)
			writeJSON(w, http.StatusOK, res)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// parseQuery builds a QueryContext from request parameters. Category is
// required; everything else is whatever location detail the caller has.
func parseQuery(req *http.Request) (source.QueryContext, error) {
	q := req.URL.Query()

	qc := source.QueryContext{
		Category: source.Category(q.Get("category")),
		Address:  q.Get("address"),
		State:    q.Get("state"),
		County:   q.Get("county"),
		City:     q.Get("city"),
		ZIP:      q.Get("zip"),
	}
	if qc.Category == "" {
		return qc, fmt.Errorf("category is required")
	}

	if v := q.Get("lat"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return qc, fmt.Errorf("invalid lat: %q", v)
		}
		qc.Latitude = lat
	}
	if v := q.Get("lon"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return qc, fmt.Errorf("invalid lon: %q", v)
		}
		qc.Longitude = lon
	}

	return qc, nil
}

func cacheKey(qc source.QueryContext) string {
	return fmt.Sprintf("%s|%s|%.6f|%.6f|%s|%s|%s|%s",
		qc.Category, qc.Address, qc.Latitude, qc.Longitude, qc.State, qc.County, qc.City, qc.ZIP)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
