package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sunridgelabs/fieldops/backend/internal/auth"
	"github.com/sunridgelabs/fieldops/backend/internal/database"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
	"github.com/sunridgelabs/fieldops/backend/internal/sheets"
	"github.com/sunridgelabs/fieldops/backend/internal/syncer"
	"go.uber.org/zap"
)

var routerTestSequence int

type routerFixture struct {
	handler   http.Handler
	issuer    *auth.TokenIssuer
	hub       *realtime.Hub
	registry  *realtime.Registry
	scheduler *syncer.Scheduler
}

func newRouterFixture(testContext *testing.T, rows [][]string) *routerFixture {
	testContext.Helper()
	gin.SetMode(gin.TestMode)
	routerTestSequence++
	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", routerTestSequence)

	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to migrate database: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		TokenTTL:      time.Hour,
	})

	registry := realtime.NewRegistry()
	hub, err := realtime.NewHub(realtime.HubConfig{Registry: registry})
	if err != nil {
		testContext.Fatalf("failed to create hub: %v", err)
	}

	fetcher, err := sheets.NewFetcher(sheets.FetcherConfig{
		Source: &sheets.StaticSource{Rows: map[string][][]string{"Signups!A:F": rows}},
		Sleep:  func(context.Context, time.Duration) {},
	})
	if err != nil {
		testContext.Fatalf("failed to create fetcher: %v", err)
	}

	orchestrator, err := syncer.NewOrchestrator(syncer.OrchestratorConfig{
		Database:      db,
		Fetcher:       fetcher,
		Hub:           hub,
		SpreadsheetID: "sheet-router-test",
		Ranges:        []string{"Signups!A:F"},
	})
	if err != nil {
		testContext.Fatalf("failed to create orchestrator: %v", err)
	}

	scheduler, err := syncer.NewScheduler(syncer.SchedulerConfig{
		Orchestrator: orchestrator,
		Registry:     registry,
	})
	if err != nil {
		testContext.Fatalf("failed to create scheduler: %v", err)
	}

	service, err := leaderboard.NewService(leaderboard.ServiceConfig{
		Database:   db,
		IDProvider: leaderboard.NewUUIDProvider(),
	})
	if err != nil {
		testContext.Fatalf("failed to create leaderboard service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: issuer,
		Scheduler:    scheduler,
		Orchestrator: orchestrator,
		Leaderboard:  service,
		Registry:     registry,
		Hub:          hub,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to create handler: %v", err)
	}

	return &routerFixture{
		handler:   handler,
		issuer:    issuer,
		hub:       hub,
		registry:  registry,
		scheduler: scheduler,
	}
}

func (f *routerFixture) bearerToken(testContext *testing.T, role string) string {
	testContext.Helper()
	token, _, err := f.issuer.IssueToken(context.Background(), auth.Caller{
		Subject: "user-" + role,
		Name:    "Test " + role,
		Role:    role,
	})
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f *routerFixture) do(testContext *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	testContext.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(testContext *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testContext.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestRouterRejectsMissingBearerToken(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)

	recorder := fixture.do(testContext, http.MethodGet, "/sync/status", "", "")
	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}

	recorder = fixture.do(testContext, http.MethodGet, "/sync/status", "not-a-token", "")
	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized for malformed token, got %d", recorder.Code)
	}
}

func TestIssueTokenEndpointReturnsBearer(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)

	recorder := fixture.do(testContext, http.MethodPost, "/auth/token", "", `{"subject":"rep-1","name":"Alice","role":"employee"}`)
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(testContext, recorder)
	if payload["token_type"] != "Bearer" {
		testContext.Fatalf("expected Bearer token type, got %v", payload["token_type"])
	}
	token, _ := payload["access_token"].(string)
	if token == "" {
		testContext.Fatalf("expected non-empty access token")
	}

	statusRecorder := fixture.do(testContext, http.MethodGet, "/sync/status", token, "")
	if statusRecorder.Code != http.StatusOK {
		testContext.Fatalf("expected issued token to authorize, got %d", statusRecorder.Code)
	}
}

func TestIssueTokenEndpointRejectsEmptySubject(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)

	recorder := fixture.do(testContext, http.MethodPost, "/auth/token", "", `{"subject":"  "}`)
	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request, got %d", recorder.Code)
	}
}

func TestSyncStatusEndpointReportsScheduler(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	recorder := fixture.do(testContext, http.MethodGet, "/sync/status", token, "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(testContext, recorder)
	if payload["scheduler_running"] != false {
		testContext.Fatalf("expected scheduler_running false before start, got %v", payload["scheduler_running"])
	}
	if payload["active_websocket_connections"] != float64(0) {
		testContext.Fatalf("expected zero active connections, got %v", payload["active_websocket_connections"])
	}
}

func TestSignupSyncEndpointPersistsRows(testContext *testing.T) {
	rows := [][]string{
		{"Rep Name", "Email", "Month", "Year", "Signups", "Revenue"},
		{"Alice", "alice@example.com", "3", "2025", "17", "1200"},
		{"Bob", "bob@example.com", "3", "2025", "9", "800"},
	}
	fixture := newRouterFixture(testContext, rows)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	recorder := fixture.do(testContext, http.MethodPost, "/sync/signups", token, "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(testContext, recorder)
	if payload["synced_count"] != float64(2) {
		testContext.Fatalf("expected synced_count 2, got %v", payload["synced_count"])
	}
	if payload["message"] != "Signup sync completed" {
		testContext.Fatalf("unexpected message: %v", payload["message"])
	}
	if _, err := time.Parse(time.RFC3339, payload["timestamp"].(string)); err != nil {
		testContext.Fatalf("expected RFC3339 timestamp, got %v", payload["timestamp"])
	}
}

func TestManualSyncEndpointReturnsResults(testContext *testing.T) {
	rows := [][]string{
		{"Rep Name", "Signups"},
		{"Alice", "5"},
	}
	fixture := newRouterFixture(testContext, rows)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	recorder := fixture.do(testContext, http.MethodPost, "/sync/manual", token, "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(testContext, recorder)
	if payload["success"] != true {
		testContext.Fatalf("expected success true, got %v", payload["success"])
	}
	results, ok := payload["results"].(map[string]any)
	if !ok {
		testContext.Fatalf("expected results object, got %v", payload["results"])
	}
	if _, present := results["signups"]; !present {
		testContext.Fatalf("expected signups category in results, got %v", results)
	}
}

func TestManualSyncEndpointReports500OnFailure(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	recorder := fixture.do(testContext, http.MethodPost, "/sync/manual", token, "")
	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected internal server error for failed sync, got %d", recorder.Code)
	}
	payload := decodeBody(testContext, recorder)
	if payload["success"] != false {
		testContext.Fatalf("expected success false, got %v", payload["success"])
	}
	results, ok := payload["results"].(map[string]any)
	if !ok {
		testContext.Fatalf("expected results object, got %v", payload["results"])
	}
	signups, _ := results["signups"].(map[string]any)
	if signups["status"] != "failed" {
		testContext.Fatalf("expected failed signups category, got %v", signups)
	}
}

func TestCreateCompetitionRequiresManagerRole(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	body := `{"name":"March Madness","competition_type":"signups","start_date":"2025-03-01","end_date":"2025-03-31"}`
	recorder := fixture.do(testContext, http.MethodPost, "/leaderboard/competitions", token, body)
	if recorder.Code != http.StatusForbidden {
		testContext.Fatalf("expected forbidden for employee, got %d", recorder.Code)
	}
}

func TestCompetitionLifecycleOverHTTP(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	managerToken := fixture.bearerToken(testContext, auth.RoleHRManager)
	employeeToken := fixture.bearerToken(testContext, auth.RoleEmployee)

	now := time.Now().UTC()
	body := fmt.Sprintf(`{"name":"Spring Sprint","competition_type":"signups","start_date":%q,"end_date":%q}`,
		now.Add(-24*time.Hour).Format(time.RFC3339), now.Add(72*time.Hour).Format(time.RFC3339))
	created := fixture.do(testContext, http.MethodPost, "/leaderboard/competitions", managerToken, body)
	if created.Code != http.StatusCreated {
		testContext.Fatalf("expected created status, got %d: %s", created.Code, created.Body.String())
	}
	competitionID, _ := decodeBody(testContext, created)["id"].(string)
	if competitionID == "" {
		testContext.Fatalf("expected competition id in response")
	}

	listed := fixture.do(testContext, http.MethodGet, "/leaderboard/competitions", employeeToken, "")
	if listed.Code != http.StatusOK {
		testContext.Fatalf("expected ok listing, got %d", listed.Code)
	}
	competitions, _ := decodeBody(testContext, listed)["competitions"].([]any)
	if len(competitions) != 1 {
		testContext.Fatalf("expected one competition, got %d", len(competitions))
	}

	joined := fixture.do(testContext, http.MethodPost, "/leaderboard/competitions/"+competitionID+"/join", employeeToken, "")
	if joined.Code != http.StatusOK {
		testContext.Fatalf("expected ok join, got %d: %s", joined.Code, joined.Body.String())
	}

	rejoined := fixture.do(testContext, http.MethodPost, "/leaderboard/competitions/"+competitionID+"/join", employeeToken, "")
	if rejoined.Code != http.StatusConflict {
		testContext.Fatalf("expected conflict on repeat join, got %d", rejoined.Code)
	}

	standings := fixture.do(testContext, http.MethodGet, "/leaderboard/competitions/"+competitionID+"/standings", employeeToken, "")
	if standings.Code != http.StatusOK {
		testContext.Fatalf("expected ok standings, got %d", standings.Code)
	}
	entries, _ := decodeBody(testContext, standings)["standings"].([]any)
	if len(entries) != 1 {
		testContext.Fatalf("expected one standing entry, got %d", len(entries))
	}

	status := fixture.do(testContext, http.MethodGet, "/leaderboard/competitions/"+competitionID+"/status", employeeToken, "")
	if status.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", status.Code)
	}
	statusPayload := decodeBody(testContext, status)
	if statusPayload["status"] != "current" {
		testContext.Fatalf("expected current lifecycle status, got %v", statusPayload["status"])
	}
}

func TestCompetitionEndpointsReturnNotFound(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	token := fixture.bearerToken(testContext, auth.RoleEmployee)

	recorder := fixture.do(testContext, http.MethodGet, "/leaderboard/competitions/missing-id", token, "")
	if recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestBonusTierEndpoints(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)
	managerToken := fixture.bearerToken(testContext, auth.RoleSuperAdmin)
	employeeToken := fixture.bearerToken(testContext, auth.RoleEmployee)

	listed := fixture.do(testContext, http.MethodGet, "/leaderboard/bonus-tiers", employeeToken, "")
	if listed.Code != http.StatusOK {
		testContext.Fatalf("expected ok listing, got %d", listed.Code)
	}
	tiers, _ := decodeBody(testContext, listed)["bonus_tiers"].([]any)
	if len(tiers) != 6 {
		testContext.Fatalf("expected six seeded tiers, got %d", len(tiers))
	}

	forbidden := fixture.do(testContext, http.MethodPost, "/leaderboard/bonus-tiers", employeeToken,
		`{"tier_number":7,"name":"Legend","signup_threshold":45}`)
	if forbidden.Code != http.StatusForbidden {
		testContext.Fatalf("expected forbidden for employee, got %d", forbidden.Code)
	}

	created := fixture.do(testContext, http.MethodPost, "/leaderboard/bonus-tiers", managerToken,
		`{"tier_number":7,"name":"Legend","signup_threshold":45}`)
	if created.Code != http.StatusCreated {
		testContext.Fatalf("expected created status, got %d: %s", created.Code, created.Body.String())
	}

	descending := fixture.do(testContext, http.MethodPost, "/leaderboard/bonus-tiers", managerToken,
		`{"tier_number":8,"name":"Broken","signup_threshold":10}`)
	if descending.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request for non-ascending threshold, got %d", descending.Code)
	}
}

func TestHealthEndpointIsPublic(testContext *testing.T) {
	fixture := newRouterFixture(testContext, nil)

	recorder := fixture.do(testContext, http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
}
