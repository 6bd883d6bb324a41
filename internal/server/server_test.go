package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coehub/internal/infra/persistence/memory"
	"coehub/internal/server"
	"coehub/pkg/domain"
)

func newTestHandler(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.NewStore()
	return store, server.New(store).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		payload = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func syncUser(t *testing.T, h http.Handler, email, uid string) (domain.BackendUser, string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/auth/sync-firebase-user", "", map[string]string{
		"email":       email,
		"uid":         uid,
		"displayName": "Synced User",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		User  domain.BackendUser `json:"user"`
		Token string             `json:"token"`
	}
	decodeBody(t, rec, &out)
	if out.Token == "" {
		t.Fatal("sync must issue a token")
	}
	return out.User, out.Token
}

func TestLoginUnknownEmailIsDistinct(t *testing.T) {
	_, h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@coe.example"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &out)
	if out.Code != "user_not_found" {
		t.Fatalf("code = %q", out.Code)
	}
}

func TestSyncCreatesUserWithDefaultRole(t *testing.T) {
	_, h := newTestHandler(t)
	user, _ := syncUser(t, h, "nadia@coe.example", "prov-nadia")
	if user.Role != server.DefaultRole {
		t.Fatalf("role = %q", user.Role)
	}
	if user.ID == "" || user.ID == "prov-nadia" {
		t.Fatalf("backend id must be assigned independently of the provider uid, got %q", user.ID)
	}
	if user.ProviderUID != "prov-nadia" {
		t.Fatalf("provider uid = %q", user.ProviderUID)
	}

	// The same identity can now log in by email.
	rec := doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "nadia@coe.example"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login after sync: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSyncIsIdempotentPerIdentity(t *testing.T) {
	store, h := newTestHandler(t)
	first, _ := syncUser(t, h, "sami@coe.example", "prov-sami")
	second, _ := syncUser(t, h, "sami@coe.example", "prov-sami")
	if first.ID != second.ID {
		t.Fatalf("repeat sync created a second user: %q vs %q", first.ID, second.ID)
	}
	if _, ok := store.FindUserByEmail("sami@coe.example"); !ok {
		t.Fatal("user missing from store")
	}
}

func TestCheckAuthReflectsToken(t *testing.T) {
	_, h := newTestHandler(t)
	user, token := syncUser(t, h, "rana@coe.example", "prov-rana")

	rec := doJSON(t, h, http.MethodGet, "/auth/check", token, nil)
	var out struct {
		Authenticated bool                `json:"authenticated"`
		User          *domain.BackendUser `json:"user"`
	}
	decodeBody(t, rec, &out)
	if !out.Authenticated || out.User == nil || out.User.ID != user.ID {
		t.Fatalf("check with token = %+v", out)
	}

	rec = doJSON(t, h, http.MethodGet, "/auth/check", "", nil)
	out = struct {
		Authenticated bool                `json:"authenticated"`
		User          *domain.BackendUser `json:"user"`
	}{}
	decodeBody(t, rec, &out)
	if out.Authenticated {
		t.Fatal("check without token must report unauthenticated")
	}
}

func TestRecordEndpointsRequireAuth(t *testing.T) {
	_, h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/projects", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecordCRUDRoundTrip(t *testing.T) {
	_, h := newTestHandler(t)
	user, token := syncUser(t, h, "lena@coe.example", "prov-lena")

	rec := doJSON(t, h, http.MethodPost, "/projects", token, map[string]any{
		"fields": map[string]any{"projectTitle": "AI Diagnostics", "status": "active"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	var created domain.Record
	decodeBody(t, rec, &created)
	if created.ID == "" || created.CreatedBy.ID != user.ID {
		t.Fatalf("created = %+v", created)
	}

	rec = doJSON(t, h, http.MethodGet, "/projects", token, nil)
	var listed []domain.Record
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("list = %+v", listed)
	}

	rec = doJSON(t, h, http.MethodPut, "/projects/"+created.ID, token, map[string]any{
		"fields": map[string]any{"projectTitle": "AI Diagnostics", "status": "archived"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var updated domain.Record
	decodeBody(t, rec, &updated)
	if updated.Fields["status"] != "archived" {
		t.Fatalf("updated fields = %+v", updated.Fields)
	}
	if updated.CreatedBy.ID != user.ID {
		t.Fatal("update must not change the creator")
	}

	rec = doJSON(t, h, http.MethodDelete, "/projects/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/projects/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestListOnlyMineFiltersByCreator(t *testing.T) {
	_, h := newTestHandler(t)
	_, tokenA := syncUser(t, h, "a@coe.example", "prov-a")
	userB, tokenB := syncUser(t, h, "b@coe.example", "prov-b")

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/patents", tokenA, map[string]any{
			"fields": map[string]any{"title": fmt.Sprintf("Patent A%d", i)},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create: %d", rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodPost, "/patents", tokenB, map[string]any{
		"fields": map[string]any{"title": "Patent B"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/patents?onlyMine=true", tokenB, nil)
	var mine []domain.Record
	decodeBody(t, rec, &mine)
	if len(mine) != 1 || mine[0].CreatedBy.ID != userB.ID {
		t.Fatalf("onlyMine = %+v", mine)
	}

	rec = doJSON(t, h, http.MethodGet, "/patents", tokenB, nil)
	var all []domain.Record
	decodeBody(t, rec, &all)
	if len(all) != 3 {
		t.Fatalf("full list = %d records", len(all))
	}
}

func TestUnknownResourceRejected(t *testing.T) {
	_, h := newTestHandler(t)
	_, token := syncUser(t, h, "x@coe.example", "prov-x")
	rec := doJSON(t, h, http.MethodGet, "/organisms", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAttachmentUpdateIsIsolated(t *testing.T) {
	_, h := newTestHandler(t)
	_, token := syncUser(t, h, "att@coe.example", "prov-att")

	rec := doJSON(t, h, http.MethodPost, "/collaborations", token, map[string]any{
		"fields": map[string]any{"partner": "Institute of Sensing"},
	})
	var created domain.Record
	decodeBody(t, rec, &created)

	rec = doJSON(t, h, http.MethodPut, "/collaborations/"+created.ID+"/attachment", token, map[string]string{
		"attachment": "pdfs/u-1/mou.pdf",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("attachment status = %d", rec.Code)
	}
	var updated domain.Record
	decodeBody(t, rec, &updated)
	if updated.Attachment != "pdfs/u-1/mou.pdf" {
		t.Fatalf("attachment = %q", updated.Attachment)
	}
	if updated.Fields["partner"] != "Institute of Sensing" {
		t.Fatal("attachment update must not touch fields")
	}

	rec = doJSON(t, h, http.MethodPut, "/collaborations/"+created.ID+"/attachment", token, map[string]string{
		"attachment": "",
	})
	var cleared domain.Record
	decodeBody(t, rec, &cleared)
	if cleared.Attachment != "" {
		t.Fatalf("clear left %q", cleared.Attachment)
	}
}

func TestSaveReportRequiresTitle(t *testing.T) {
	_, h := newTestHandler(t)
	_, token := syncUser(t, h, "rep@coe.example", "prov-rep")

	rec := doJSON(t, h, http.MethodPost, "/reports", token, map[string]any{
		"title":      "   ",
		"sourceType": "project",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d", rec.Code)
	}

	criteria := domain.NewFilterCriteria()
	criteria.Values["projectTitle"] = "ai"
	rec = doJSON(t, h, http.MethodPost, "/reports", token, map[string]any{
		"title":          "AI projects",
		"sourceType":     "project",
		"filterCriteria": criteria,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d body %s", rec.Code, rec.Body.String())
	}
	var saved domain.Report
	decodeBody(t, rec, &saved)
	if saved.Title != "AI projects" || saved.SourceType != domain.EntityProject {
		t.Fatalf("saved = %+v", saved)
	}

	rec = doJSON(t, h, http.MethodGet, "/reports", token, nil)
	var reports []domain.Report
	decodeBody(t, rec, &reports)
	if len(reports) != 1 || reports[0].Criteria.Values["projectTitle"] != "ai" {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	_, h := newTestHandler(t)
	user, token := syncUser(t, h, "ana@coe.example", "prov-ana")

	for _, resource := range []string{"projects", "projects", "patents"} {
		rec := doJSON(t, h, http.MethodPost, "/"+resource, token, map[string]any{
			"fields": map[string]any{"title": "row"},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", resource, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/analytics/data-usage", token, nil)
	var usage struct {
		Tables map[string]int `json:"tables"`
		Total  int            `json:"total"`
	}
	decodeBody(t, rec, &usage)
	if usage.Total != 3 || usage.Tables["projects"] != 2 {
		t.Fatalf("usage = %+v", usage)
	}

	rec = doJSON(t, h, http.MethodGet, "/analytics/data-usage/table/patents", token, nil)
	var table struct {
		Table string `json:"table"`
		Count int    `json:"count"`
	}
	decodeBody(t, rec, &table)
	if table.Count != 1 {
		t.Fatalf("table usage = %+v", table)
	}

	rec = doJSON(t, h, http.MethodGet, "/analytics/data-usage/user/"+user.ID, token, nil)
	var byUser struct {
		UserID string         `json:"user_id"`
		Tables map[string]int `json:"tables"`
		Total  int            `json:"total"`
	}
	decodeBody(t, rec, &byUser)
	if byUser.Total != 3 || byUser.UserID != user.ID {
		t.Fatalf("user usage = %+v", byUser)
	}

	rec = doJSON(t, h, http.MethodGet, "/analytics/data-usage/table/unknown", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown table status = %d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	_, h := newTestHandler(t)
	_, token := syncUser(t, h, "m@coe.example", "prov-m")
	if rec := doJSON(t, h, http.MethodPost, "/projects", token, map[string]any{"fields": map[string]any{"a": "b"}}); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "coehub_http_requests_total") {
		t.Fatal("request counter missing from exposition")
	}
	if !strings.Contains(body, `coehub_record_writes_total{operation="create",resource="projects"}`) {
		t.Fatalf("record write counter missing from exposition:\n%s", body)
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func doCSV(t *testing.T, h http.Handler, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBulkImportCreatesRowsAndReportsFailures(t *testing.T) {
	_, h := newTestHandler(t)
	user, token := syncUser(t, h, "lena@coe.example", "prov-lena")

	csv := "projectTitle,amount\nSolar Grid,120000\n,50\nWind Farm,75000\n"
	rec := doCSV(t, h, "/projects/import", token, csv)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Created []domain.Record `json:"created"`
		Failed  []struct {
			Line  int    `json:"line"`
			Error string `json:"error"`
		} `json:"failed"`
	}
	decodeBody(t, rec, &out)
	if len(out.Created) != 2 {
		t.Fatalf("created %d rows, want 2: %+v", len(out.Created), out.Created)
	}
	if len(out.Failed) != 1 || out.Failed[0].Line != 3 {
		t.Fatalf("failures = %+v, want only line 3", out.Failed)
	}
	for _, r := range out.Created {
		if r.CreatedBy.ID != user.ID {
			t.Fatalf("imported row not stamped with importer: %+v", r.CreatedBy)
		}
	}

	list := doJSON(t, h, http.MethodGet, "/projects", token, nil)
	var records []domain.Record
	decodeBody(t, list, &records)
	if len(records) != 2 {
		t.Fatalf("list after import has %d records, want 2", len(records))
	}

	metrics := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	body := metrics.Body.String()
	if !strings.Contains(body, `coehub_import_rows_total{outcome="created",resource="projects"} 2`) {
		t.Fatalf("created rows not counted:\n%s", body)
	}
	if !strings.Contains(body, `coehub_import_rows_total{outcome="failed",resource="projects"} 1`) {
		t.Fatalf("failed rows not counted:\n%s", body)
	}
}

func TestBulkImportUnknownColumnWritesNothing(t *testing.T) {
	_, h := newTestHandler(t)
	_, token := syncUser(t, h, "lena@coe.example", "prov-lena")

	rec := doCSV(t, h, "/projects/import", token, "notAField\nvalue\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("import status = %d, want 400", rec.Code)
	}

	list := doJSON(t, h, http.MethodGet, "/projects", token, nil)
	var records []domain.Record
	decodeBody(t, list, &records)
	if len(records) != 0 {
		t.Fatalf("bad header must not create rows, got %d", len(records))
	}
}

func TestBulkImportRequiresAuth(t *testing.T) {
	_, h := newTestHandler(t)
	rec := doCSV(t, h, "/projects/import", "", "projectTitle\nSolar Grid\n")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
