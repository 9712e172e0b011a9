package server

import (
	"io"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/deskbook/internal/auth"
	httpmiddleware "github.com/wolfeidau/deskbook/internal/http"
	"github.com/wolfeidau/deskbook/internal/logger"
	"github.com/wolfeidau/deskbook/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultMaxBodyBytes = 1 << 20 // 1MiB

// Config wires the server to its collaborators.
type Config struct {
	Docs      store.DocumentStore
	Verifier  *auth.TokenVerifier
	Refresher auth.Refresher // optional, asked to refresh keys on an unknown kid
	Accounts  Accounts       // optional, enables the /auth routes

	CORSOrigins  []string
	Tracing      bool
	MaxBodyBytes int64
}

// Server serves the booking API.
type Server struct {
	cfg    Config
	loader *store.Loader
	tx     *store.TransactionalStore
	authn  *auth.Authenticator
}

// NewServer creates a new server reading and writing through cfg.Docs.
func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		cfg:    cfg,
		loader: store.NewLoader(cfg.Docs),
		tx:     store.NewTransactionalStore(cfg.Docs),
		authn:  auth.NewAuthenticator(cfg.Verifier, cfg.Refresher, writeError),
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.Accounts != nil {
		mux.HandleFunc("POST /auth/signup", s.signUp)
		mux.HandleFunc("POST /auth/verify", s.verifyAccount)
		mux.HandleFunc("POST /auth/signin", s.signIn)
	}

	protected := s.authn.Middleware()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}

	handle("GET /protected/secret", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "the secret is secret")
	})

	handle("GET /organizations", s.listOrganizations)
	handle("PUT /organizations", s.createOrganization)
	handle("GET /organizations/{id}", s.getOrganization)
	handle("PATCH /organizations/{id}", s.updateOrganization)
	handle("DELETE /organizations/{id}", s.deleteOrganization)
	handle("GET /organizations/{id}/offices", s.listOrganizationOffices)

	handle("GET /offices", s.listOffices)
	handle("PUT /offices", s.createOffice)
	handle("GET /offices/{id}", s.getOffice)
	handle("PATCH /offices/{id}", s.updateOffice)
	handle("DELETE /offices/{id}", s.deleteOffice)

	handle("GET /reservations", s.listReservations)
	handle("PUT /reservations", s.createReservation)
	handle("GET /reservations/{id}", s.getReservation)
	handle("PATCH /reservations/{id}", s.updateReservation)
	handle("DELETE /reservations/{id}", s.deleteReservation)
	handle("GET /reservations/office/{officeId}", s.listOfficeReservations)
	handle("GET /reservations/user/{user}", s.listUserReservations)

	var h http.Handler = mux
	h = httpmiddleware.MaxBodyBytes(s.cfg.MaxBodyBytes)(h)
	h = withCORS(s.cfg.CORSOrigins, h)
	h = httpmiddleware.ClientIPMiddleware()(h)
	h = logger.AccessLog(log)(h)
	if s.cfg.Tracing {
		h = otelhttp.NewHandler(h, "deskbook")
	}
	return h
}

// withCORS allows browser clients on the configured origins to call the API
// with a bearer token.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPut,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	})
	return middleware.Handler(h)
}
