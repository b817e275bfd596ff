package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

// Server exposes the most recent dispatcher run's result tables and
// metadata for dashboards, in the style of the teacher's own scan API but
// read-only: it never invokes a scanner itself.
type Server struct {
	apiPath    string
	logger     zerolog.Logger
	router     huma.API
	resultsDir string
}

// NewServer returns a new Server that reads run output from resultsDir.
func NewServer(logger zerolog.Logger, resultsDir, version string) *Server {
	server := Server{
		apiPath:    "/api/v1",
		logger:     logger,
		resultsDir: resultsDir,
	}

	config := huma.DefaultConfig("domainscan results API", version)
	config.Info.Description = "Read-only API serving the most recent scan run's per-scanner result tables and run metadata."
	config.DocsPath = ""
	config.OpenAPIPath = "/api/v1/docs"

	mux := chi.NewMux()
	mux.Use(middleware.RedirectSlashes, middleware.RealIP, handleLogging(&logger), middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(httprate.Limit(10, 3*time.Second,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			response, err := json.Marshal(huma.Error429TooManyRequests("try again later"))
			if err != nil {
				http.Error(w, "an error occurred", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(429)
			_, _ = w.Write(response)
		}),
	))
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.apiPath+"/docs", http.StatusFound)
	})

	server.router = humachi.New(mux, config)
	server.registerVersionRoute(version)
	server.registerResultsRoutes()

	return &server
}

// Serve starts the results API on port (default 8080).
func (s *Server) Serve(port int) {
	if port == 0 {
		port = 8080
	}

	portString := cast.ToString(port)
	httpServer := &http.Server{
		Addr:         "0.0.0.0:" + portString,
		Handler:      s.router.Adapter(),
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Msg("starting results API on port " + portString)
	s.logger.Fatal().Err(httpServer.ListenAndServe()).Msg("results API stopped")
}

func (s *Server) registerVersionRoute(version string) {
	type VersionResponse struct {
		Body struct {
			Version string `json:"version" doc:"The version of the API." example:"1.0.0"`
		}
	}

	huma.Register(s.router, huma.Operation{
		OperationID: "version",
		Summary:     "Get the version of the API",
		Method:      http.MethodGet,
		Path:        s.apiPath + "/version",
		Tags:        []string{"Version"},
	}, func(ctx context.Context, input *struct{}) (*VersionResponse, error) {
		resp := &VersionResponse{}
		resp.Body.Version = version
		return resp, nil
	})
}

func handleLogging(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrappedWriter := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("type", "error").
						Timestamp().
						Interface("recover_info", rec).
						Bytes("debug_stack", debug.Stack()).
						Msg("system error")
					http.Error(wrappedWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}

				logger.Info().
					Timestamp().
					Fields(map[string]interface{}{
						"ip":      r.RemoteAddr,
						"method":  r.Method,
						"url":     r.URL.Path,
						"status":  wrappedWriter.Status(),
						"latency": time.Since(startTime).Round(time.Millisecond).String(),
					}).Msg("request")
			}()

			next.ServeHTTP(wrappedWriter, r)
		})
	}
}
