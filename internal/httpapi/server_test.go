package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/store"
)

type fakeQueue struct{ ids []string }

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	q.ids = append(q.ids, id)
	return nil
}

func newTestServer() (*Server, *store.Memory, *fakeQueue) {
	st := store.NewMemory()
	q := &fakeQueue{}
	return New(st, q, zap.NewNop()), st, q
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndStatus(t *testing.T) {
	s, st, q := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/v1/jobs",
		`{"kind":"apply","tenant":"acme","parameters":{"targetSelector":"campaign-7","pricePolicy":"min","options":{"dryRun":true}}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
	}
	var out struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.ID == "" {
		t.Fatal("no id returned")
	}
	if len(q.ids) != 1 || q.ids[0] != out.ID {
		t.Fatalf("enqueued = %v", q.ids)
	}
	job, err := st.Get(context.Background(), out.ID)
	if err != nil || job.Status != domain.StatusQueued {
		t.Fatalf("job=%+v err=%v", job, err)
	}

	rec = doJSON(t, s, http.MethodGet, "/v1/jobs/"+out.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var status struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Counters struct {
			Total *int64 `json:"total"`
		} `json:"counters"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Status != "queued" || status.Progress != 0 || status.Counters.Total != nil {
		t.Fatalf("status = %+v", status)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, _, _ := newTestServer()
	cases := map[string]string{
		"unknown kind":   `{"kind":"nope","parameters":{"targetSelector":"x"}}`,
		"no selector":    `{"kind":"apply","parameters":{}}`,
		"bad policy":     `{"kind":"apply","parameters":{"targetSelector":"x","pricePolicy":"median"}}`,
		"no payload":     `{"kind":"bulk-update","parameters":{"targetSelector":"x"}}`,
		"percent range":  `{"kind":"remove","parameters":{"targetSelector":"x","filter":{"maxDerivedPercent":150}}}`,
		"negative total": `{"kind":"remove","parameters":{"targetSelector":"x","options":{"expectedTotal":-1}}}`,
		"malformed json": `{"kind":`,
	}
	for name, body := range cases {
		if rec := doJSON(t, s, http.MethodPost, "/v1/jobs", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d, want 400", name, rec.Code)
		}
	}
}

func TestStatusNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	if rec := doJSON(t, s, http.MethodGet, "/v1/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestResultLifecycle(t *testing.T) {
	s, st, _ := newTestServer()
	ctx := context.Background()
	job := &domain.Job{ID: "j1", Kind: domain.KindRemove, Status: domain.StatusQueued}
	st.Create(ctx, job)

	if rec := doJSON(t, s, http.MethodGet, "/v1/jobs/j1/result", ""); rec.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409 before terminal", rec.Code)
	}

	st.MarkActive(ctx, "j1")
	st.Finish(ctx, "j1", domain.StatusCompleted, &domain.Result{Total: 5, Succeeded: 4, Failed: 1})
	rec := doJSON(t, s, http.MethodGet, "/v1/jobs/j1/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var res domain.Result
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Total != 5 || res.Succeeded != 4 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestCancel(t *testing.T) {
	s, st, _ := newTestServer()
	ctx := context.Background()
	st.Create(ctx, &domain.Job{ID: "j1", Kind: domain.KindRemove, Status: domain.StatusQueued})

	rec := doJSON(t, s, http.MethodPost, "/v1/jobs/j1/cancel", "")
	var out map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusOK || !out["cancelled"] {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}

	st.Finish(ctx, "j1", domain.StatusCancelled, nil)
	rec = doJSON(t, s, http.MethodPost, "/v1/jobs/j1/cancel", "")
	json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusOK || out["cancelled"] {
		t.Fatalf("terminal job must report false, body=%s", rec.Body)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s, st, _ := newTestServer()
	ctx := context.Background()
	st.Create(ctx, &domain.Job{ID: "j1", Kind: domain.KindRemove, Status: domain.StatusQueued})
	st.Create(ctx, &domain.Job{ID: "j2", Kind: domain.KindExport, Status: domain.StatusQueued})
	st.MarkActive(ctx, "j2")

	rec := doJSON(t, s, http.MethodGet, "/v1/jobs?status=active", "")
	var out []struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out) != 1 || out[0].ID != "j2" {
		t.Fatalf("list = %v", out)
	}
}
