package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"teatrace/internal/core"
	"teatrace/pkg/domain"
)

// BootstrapRequest names the first Authority.
type BootstrapRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// UpdateStageRequest advances a product one stage.
type UpdateStageRequest struct {
	Target domain.Stage `json:"target"`
	Notes  string       `json:"notes"`
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	participant, _, err := s.service.BootstrapAuthority(r.Context(), req.Identity, req.Name, req.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

func (s *Server) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var input core.RegisterParticipantInput
	if !decodeBody(w, r, &input) {
		return
	}
	participant, _, err := s.service.RegisterParticipant(r.Context(), caller, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListParticipants())
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	writeJSON(w, http.StatusOK, s.service.GetParticipant(identity))
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var input core.CreateProductInput
	if !decodeBody(w, r, &input) {
		return
	}
	product, _, err := s.service.CreateProduct(r.Context(), caller, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListProducts())
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := s.service.GetProductByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleGetProductByBatch(w http.ResponseWriter, r *http.Request) {
	product, err := s.service.GetProductByBatch(mux.Vars(r)["batch"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req UpdateStageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, _, err := s.service.UpdateStage(r.Context(), caller, id, req.Target, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	history, err := s.service.GetHistory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	report, err := s.service.Trace(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportProvenance(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	info, err := s.service.ExportProvenance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleProductsByOwner(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	ids := s.service.ListProductsByOwner(identity)
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCounts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetCounts())
}

func callerIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + CallerHeader + " header"})
		return "", false
	}
	return caller, true
}

func productID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid product id"})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
