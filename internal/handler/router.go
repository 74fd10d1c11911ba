package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"repairdesk/internal/realtime"
	"repairdesk/internal/token"
	"repairdesk/internal/util"
)

// RouterDeps bundles everything the router wires together.
type RouterDeps struct {
	Auth      *AuthHandler
	Employees *EmployeeHandler
	Customers *CustomerHandler
	Reports   *ReportHandler
	WS        *WSHandler

	Tokens     *token.Manager
	Hub        *realtime.Hub
	UploadsDir string
	Logger     *zap.Logger
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(deps.Logger))
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.Info("Health check requested")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"repairdesk","channels":%d}`,
			deps.Hub.ConnectionCount())
	})

	// Realtime endpoint. Mounted outside the timeout group: channels stay
	// open for the client's whole session.
	router.Get("/ws", deps.WS.Serve)

	// Uploaded avatars are served as static files
	router.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(deps.UploadsDir))))

	// API routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api/v1", func(r chi.Router) {
			deps.Auth.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(Authenticator(deps.Tokens))
				deps.Employees.RegisterRoutes(r)
				deps.Customers.RegisterRoutes(r)
				deps.Reports.RegisterRoutes(r)
			})
		})
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}
