package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/RyanBlaney/song-popularity/configs"
	"github.com/RyanBlaney/song-popularity/internal/app"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

// NewRouter registers every route with its methods behind the request id
// middleware
func NewRouter(routes []Route, logger logging.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware(logger))

	for _, route := range routes {
		router.Handle(route.Pattern(), route).Methods(route.Methods()...)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Detail: "method not allowed"})
	})

	return router
}

// Routes returns the service's handlers
func Routes(a *app.Context, logger logging.Logger) []Route {
	return []Route{
		NewHealthHandler("/"),
		NewHealthHandler("/health"),
		NewGenresHandler(),
		NewPredictHandler(a, logger),
		NewPredictFileHandler(a, logger),
		NewExtractHandler(a, logger),
	}
}

// NewHTTPServer builds the server and ties its listener to the fx lifecycle
func NewHTTPServer(lc fx.Lifecycle, cfg *configs.Config, a *app.Context, logger logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      NewRouter(Routes(a, logger), logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("Starting HTTP server", logging.Fields{"address": ln.Addr().String()})
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error(err, "HTTP server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server")
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return a.Close()
		},
	})

	return srv
}

// Module wires the service: the config and logger are supplied, the
// predictor context loads the artifacts and the server starts with the app
func Module(cfg *configs.Config, logger logging.Logger) fx.Option {
	serverLogger := logger.WithFields(logging.Fields{"component": "http_server"})

	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logging.Zap(logger)}
		}),
		fx.StopTimeout(cfg.Server.ShutdownTimeout+cfg.Extraction.Timeout),
		fx.Supply(cfg),
		fx.Provide(
			func() logging.Logger { return serverLogger },
			app.NewContext,
			NewHTTPServer,
		),
		fx.Invoke(func(*http.Server) {}),
	)
}
