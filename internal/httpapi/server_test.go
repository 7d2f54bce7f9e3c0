package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"teatrace/internal/core"
	"teatrace/internal/infra/persistence/memory"
	"teatrace/pkg/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store)
	srv := httptest.NewServer(NewServer(svc, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)

	if _, _, err := svc.BootstrapAuthority(context.Background(), "authority", "Tea Board", "Kolkata"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for identity, role := range map[string]domain.Role{
		"farmer":    domain.RoleFarmer,
		"processor": domain.RoleProcessor,
	} {
		_, _, err := svc.RegisterParticipant(context.Background(), "authority", core.RegisterParticipantInput{
			Identity: identity,
			Role:     role,
		})
		if err != nil {
			t.Fatalf("register %s: %v", identity, err)
		}
	}
	return srv
}

func doJSON(t *testing.T, method, url, caller string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createTestProduct(t *testing.T, srv *httptest.Server, batch string) domain.Product {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", "farmer", core.CreateProductInput{
		BatchID:  batch,
		Name:     "Assam Black Tea",
		Quantity: 100,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	return decode[domain.Product](t, resp)
}

func TestCreateAndFetchProduct(t *testing.T) {
	srv := newTestServer(t)
	product := createTestProduct(t, srv, "ASS-2024-002")
	if product.ID == 0 || product.CurrentStage != domain.StageCultivation {
		t.Fatalf("created = %+v", product)
	}

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d", srv.URL, product.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	got := decode[domain.Product](t, resp)
	if got.BatchID != "ASS-2024-002" {
		t.Fatalf("batch = %s", got.BatchID)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/batch/ASS-2024-002", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch lookup status = %d", resp.StatusCode)
	}
}

func TestUpdateStageEndpoint(t *testing.T) {
	srv := newTestServer(t)
	product := createTestProduct(t, srv, "ASS-2024-002")

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/products/%d/stage", srv.URL, product.ID), "processor", UpdateStageRequest{
		Target: domain.StageProcessing,
		Notes:  "withered and rolled",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decode[domain.Product](t, resp)
	if updated.CurrentStage != domain.StageProcessing || updated.CurrentOwner != "processor" {
		t.Fatalf("updated = %+v", updated)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d/history", srv.URL, product.ID), "", nil)
	history := decode[[]domain.HistoryEntry](t, resp)
	if len(history) != 2 || history[1].Notes != "withered and rolled" {
		t.Fatalf("history = %+v", history)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	product := createTestProduct(t, srv, "ASS-2024-002")
	stageURL := fmt.Sprintf("%s/api/v1/products/%d/stage", srv.URL, product.ID)

	cases := []struct {
		name   string
		fn     func() *http.Response
		status int
	}{
		{"missing caller header", func() *http.Response {
			return doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", "", core.CreateProductInput{BatchID: "X", Quantity: 1})
		}, http.StatusUnauthorized},
		{"wrong role", func() *http.Response {
			return doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", "processor", core.CreateProductInput{BatchID: "X", Quantity: 1})
		}, http.StatusForbidden},
		{"duplicate batch", func() *http.Response {
			return doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", "farmer", core.CreateProductInput{BatchID: "ASS-2024-002", Quantity: 1})
		}, http.StatusConflict},
		{"invalid quantity", func() *http.Response {
			return doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", "farmer", core.CreateProductInput{BatchID: "Y", Quantity: 0})
		}, http.StatusBadRequest},
		{"unknown product", func() *http.Response {
			return doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/999", "", nil)
		}, http.StatusNotFound},
		{"skipped stage", func() *http.Response {
			return doJSON(t, http.MethodPost, stageURL, "processor", UpdateStageRequest{Target: domain.StageWarehousing})
		}, http.StatusConflict},
		{"wrong role right step", func() *http.Response {
			return doJSON(t, http.MethodPost, stageURL, "farmer", UpdateStageRequest{Target: domain.StageProcessing})
		}, http.StatusForbidden},
		{"malformed body", func() *http.Response {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/products", bytes.NewReader([]byte("{nope")))
			req.Header.Set(CallerHeader, "farmer")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("malformed request: %v", err)
			}
			t.Cleanup(func() { _ = resp.Body.Close() })
			return resp
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := tc.fn()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
	}
}

func TestBootstrapEndpoint(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store)
	srv := httptest.NewServer(NewServer(svc, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/bootstrap", "", BootstrapRequest{Identity: "authority", Name: "Tea Board"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bootstrap status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/bootstrap", "", BootstrapRequest{Identity: "usurper"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("second bootstrap status = %d", resp.StatusCode)
	}
}

func TestOwnerAndCountEndpoints(t *testing.T) {
	srv := newTestServer(t)
	product := createTestProduct(t, srv, "ASS-2024-002")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/owners/farmer/products", "", nil)
	ids := decode[[]uint64](t, resp)
	if len(ids) != 1 || ids[0] != product.ID {
		t.Fatalf("owner ids = %v", ids)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/owners/nobody/products", "", nil)
	if got := decode[[]uint64](t, resp); len(got) != 0 {
		t.Fatalf("unknown owner ids = %v", got)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/counts", "", nil)
	counts := decode[domain.Counts](t, resp)
	if counts.Total != 1 || counts.Active != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestTraceEndpoint(t *testing.T) {
	srv := newTestServer(t)
	product := createTestProduct(t, srv, "ASS-2024-002")

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/products/%d/trace", srv.URL, product.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trace status = %d", resp.StatusCode)
	}
	report := decode[core.TraceReport](t, resp)
	if len(report.History) != 1 || len(report.Pending) != 5 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("response missing request id")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	echo, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = echo.Body.Close() }()
	if got := echo.Header.Get(RequestIDHeader); got != "fixed-id" {
		t.Fatalf("request id = %q, want fixed-id", got)
	}
}
