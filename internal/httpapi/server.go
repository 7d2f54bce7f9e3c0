// Package httpapi exposes the ledger service over HTTP. The transport owns
// caller authentication: the authenticated identity arrives in the
// X-Caller-Identity header and is passed through to the core, which re-checks
// the stored role on every mutating call.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"teatrace/internal/core"
)

// CallerHeader carries the authenticated caller identity on mutating requests.
const CallerHeader = "X-Caller-Identity"

// Server wires the ledger service into an HTTP router.
type Server struct {
	service *core.Service
	logger  zerolog.Logger
}

// NewServer constructs a server around the supplied service.
func NewServer(service *core.Service, logger zerolog.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Router builds the route table. All API routes live under /api/v1.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bootstrap", s.handleBootstrap).Methods(http.MethodPost)
	api.HandleFunc("/participants", s.handleRegisterParticipant).Methods(http.MethodPost)
	api.HandleFunc("/participants", s.handleListParticipants).Methods(http.MethodGet)
	api.HandleFunc("/participants/{identity}", s.handleGetParticipant).Methods(http.MethodGet)
	api.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/batch/{batch}", s.handleGetProductByBatch).Methods(http.MethodGet)
	api.HandleFunc("/products/{id:[0-9]+}", s.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id:[0-9]+}/stage", s.handleUpdateStage).Methods(http.MethodPost)
	api.HandleFunc("/products/{id:[0-9]+}/history", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/products/{id:[0-9]+}/trace", s.handleTrace).Methods(http.MethodGet)
	api.HandleFunc("/products/{id:[0-9]+}/provenance", s.handleExportProvenance).Methods(http.MethodPost)
	api.HandleFunc("/owners/{identity}/products", s.handleProductsByOwner).Methods(http.MethodGet)
	api.HandleFunc("/counts", s.handleCounts).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
