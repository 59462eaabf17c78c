package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/venuefinder/internal/adapters/http"
	"github.com/samirrijal/venuefinder/internal/core/domain"
	"github.com/samirrijal/venuefinder/internal/core/usecases"
)

// ---- Mock catalog and store ----

type mockCatalog struct {
	listFn func(ctx context.Context) ([]domain.SourceDescriptor, error)
}

func (m *mockCatalog) ListSources(ctx context.Context) ([]domain.SourceDescriptor, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockStore struct {
	loadFn func(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error)
}

func (m *mockStore) Load(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, src)
	}
	return nil, nil
}

// ---- Fixtures ----

var (
	ctaSource = domain.SourceDescriptor{
		Handle: "cta.txt",
		Label:  "CTA",
		Box:    domain.BoundingBox{LatMin: 41.721558, LatMax: 42.073623, LonMin: -87.904004, LonMax: -87.605799},
	}
	mtaSource = domain.SourceDescriptor{
		Handle: "mta.txt",
		Label:  "MTA",
		Box:    domain.BoundingBox{LatMin: 40.5, LatMax: 40.95, LonMin: -74.25, LonMax: -73.7},
	}

	fixtureRecords = map[string][]domain.EntranceRecord{
		"cta.txt": {
			{StationName: "Clark/Lake", Lat: 41.8857261, Lon: -87.6309138},
			{StationName: "Clinton", Lat: 41.875, Lon: -87.641},
			{StationName: "Kenosha", Lat: 42.58, Lon: -87.82},
		},
		"mta.txt": {
			{StationName: "Grand Central-42 St", Lat: 40.752, Lon: -73.977},
			{StationName: "Clinton-Washington Avs", Lat: 40.683, Lon: -73.966},
		},
	}
)

// ---- Test helpers ----

func setupApp(t *testing.T, deps *handler.Dependencies) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(t *testing.T, catalog *mockCatalog, store *mockStore) *handler.Dependencies {
	t.Helper()
	if catalog == nil {
		catalog = &mockCatalog{listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) {
			return []domain.SourceDescriptor{ctaSource, mtaSource}, nil
		}}
	}
	if store == nil {
		store = &mockStore{loadFn: func(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
			return fixtureRecords[src.Handle], nil
		}}
	}
	svc, err := usecases.NewEntranceService(catalog, store, usecases.WithWorkers(2))
	if err != nil {
		t.Fatalf("new entrance service: %v", err)
	}
	t.Cleanup(svc.Release)

	return &handler.Dependencies{
		Entrances:    svc,
		Sources:      usecases.NewSourceService(catalog, nil),
		QueryTimeout: 2 * time.Second,
	}
}

func get(t *testing.T, app *fiber.App, url string) (int, []byte, map[string]string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, body, headers
}

func decodeEntrances(t *testing.T, body []byte) []domain.MatchResult {
	t.Helper()
	var list handler.EntranceList
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	return list.Entrances
}

// ---- Search ----

func TestSearchEntrances_Success(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/entrances?query=clark%20lake")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	got := decodeEntrances(t, body)
	if len(got) != 1 {
		t.Fatalf("expected 1 entrance, got %+v", got)
	}
	if got[0].Source != "CTA" || got[0].Lat != 41.885726 || got[0].Lon != -87.630914 {
		t.Errorf("unexpected result: %+v", got[0])
	}
}

func TestSearchEntrances_RegionSelectsSources(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/entrances?query=clinton&lat_min=41.7&lat_max=42.1&lon_min=-87.9&lon_max=-87.6")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, r := range decodeEntrances(t, body) {
		if r.Source != "CTA" {
			t.Errorf("expected only CTA results inside the Chicago box, got %+v", r)
		}
	}
}

func TestSearchEntrances_MissingQuery(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/entrances")
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	var apiErr handler.APIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request error, got %s", apiErr.Code)
	}
}

func TestSearchEntrances_BlankQueryIsEmpty(t *testing.T) {
	loads := 0
	store := &mockStore{loadFn: func(ctx context.Context, src domain.SourceDescriptor) ([]domain.EntranceRecord, error) {
		loads++
		return nil, nil
	}}
	app := setupApp(t, makeDeps(t, nil, store))

	status, body, _ := get(t, app, "/v1/entrances?query=%20%20")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if got := decodeEntrances(t, body); len(got) != 0 {
		t.Errorf("expected no entrances, got %+v", got)
	}
	if !strings.Contains(string(body), `"entrances":[]`) {
		t.Errorf("expected an empty JSON array, got %s", body)
	}
	if loads != 0 {
		t.Errorf("expected no source loads, got %d", loads)
	}
}

func TestSearchEntrances_BadBound(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	for _, q := range []string{"lat_min=abc", "lon_max=NaN", "lat_max=1,5"} {
		status, _, _ := get(t, app, "/v1/entrances?query=clinton&"+q)
		if status != 400 {
			t.Errorf("%s: expected 400, got %d", q, status)
		}
	}
}

func TestSearchEntrances_QueryTooLong(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, _, _ := get(t, app, "/v1/entrances?query="+strings.Repeat("a", 201))
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestSearchEntrances_CatalogFailure(t *testing.T) {
	catalog := &mockCatalog{listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) {
		return nil, errors.New("connection refused")
	}}
	app := setupApp(t, makeDeps(t, catalog, nil))

	status, body, _ := get(t, app, "/v1/entrances?query=clinton")
	if status != 500 {
		t.Fatalf("expected 500, got %d", status)
	}
	var apiErr handler.APIError
	json.Unmarshal(body, &apiErr)
	if apiErr.Code != "internal_error" {
		t.Errorf("expected internal_error, got %s", apiErr.Code)
	}
}

func TestSearchEntrances_GeoJSON(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, headers := get(t, app, "/v1/entrances?query=clinton&format=geojson")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if ct := headers["Content-Type"]; ct != "application/geo+json" {
		t.Errorf("expected geo+json content type, got %q", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) == 0 {
		t.Fatalf("unexpected collection: %s", body)
	}
	f := fc.Features[0]
	if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) != 2 {
		t.Errorf("unexpected geometry: %+v", f.Geometry)
	}
	if f.Properties["stationName"] == nil || f.Properties["source"] == nil {
		t.Errorf("missing properties: %+v", f.Properties)
	}
}

// ---- Sources ----

func TestListSources_Pagination(t *testing.T) {
	sources := make([]domain.SourceDescriptor, 5)
	for i := range sources {
		h := fmt.Sprintf("s%d.txt", i)
		sources[i] = domain.SourceDescriptor{Handle: h, Label: domain.LabelFromHandle(h)}
	}
	catalog := &mockCatalog{listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) { return sources, nil }}
	app := setupApp(t, makeDeps(t, catalog, nil))

	status, body, headers := get(t, app, "/v1/sources?offset=2&limit=2")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data       []domain.SourceDescriptor `json:"data"`
		Pagination handler.Pagination        `json:"pagination"`
	}
	json.Unmarshal(body, &result)
	if result.Pagination.Total != 5 || result.Pagination.Offset != 2 {
		t.Errorf("unexpected pagination: %+v", result.Pagination)
	}
	if len(result.Data) != 2 || result.Data[0].Label != "S2" {
		t.Errorf("unexpected page: %+v", result.Data)
	}
	link := headers["Link"]
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link header, got %s", rel, link)
		}
	}
}

func TestGetSource(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/sources/cta")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var src domain.SourceDescriptor
	json.Unmarshal(body, &src)
	if src.Handle != "cta.txt" {
		t.Errorf("unexpected source: %+v", src)
	}

	status, _, _ = get(t, app, "/v1/sources/bart")
	if status != 404 {
		t.Errorf("expected 404 for unknown source, got %d", status)
	}
}

func TestSourceEntrances_DefaultsToSourceBox(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/sources/CTA/entrances")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decodeEntrances(t, body)
	if len(got) != 2 {
		t.Fatalf("expected the 2 entrances inside the CTA box, got %+v", got)
	}
	if got[0].StationName != "Clark/Lake" || got[1].StationName != "Clinton" {
		t.Errorf("expected file order, got %+v", got)
	}
}

func TestSourceEntrances_NotFound(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, _, _ := get(t, app, "/v1/sources/bart/entrances")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

// ---- Legacy routes ----

func TestLegacyEntrances(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, headers := get(t, app, "/api/entrances?query=grand%20central")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	found := false
	for _, r := range decodeEntrances(t, body) {
		if r.Source == "MTA" && r.StationName == "Grand Central-42 St" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Grand Central-42 St in %s", body)
	}
	if headers["Deprecation"] != "true" {
		t.Errorf("expected Deprecation header, got %q", headers["Deprecation"])
	}
	if !strings.Contains(headers["Link"], "/v1/entrances") {
		t.Errorf("expected successor link, got %q", headers["Link"])
	}
}

func TestLegacyCTAEntrances(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/api/entrances/cta?lat_min=41.87&lat_max=41.88")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decodeEntrances(t, body)
	if len(got) != 1 || got[0].StationName != "Clinton" {
		t.Errorf("expected Clinton only, got %+v", got)
	}
}

func TestLegacyCTAEntrances_PartialRegion(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/api/entrances/cta?lat_min=41.88")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decodeEntrances(t, body)
	if len(got) != 1 || got[0].StationName != "Clark/Lake" {
		t.Errorf("expected Clark/Lake only, got %+v", got)
	}
}

func TestLegacyEntrances_RowShape(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	_, body, _ := get(t, app, "/api/entrances?query=clinton")
	if !bytes.Contains(body, []byte(`"stationName"`)) {
		t.Fatalf("expected results, got %s", body)
	}
	if bytes.Contains(body, []byte(`"score"`)) {
		t.Errorf("legacy rows should carry only stationName, source, lat and lon: %s", body)
	}

	_, body, _ = get(t, app, "/v1/entrances?query=clinton")
	if !bytes.Contains(body, []byte(`"score"`)) {
		t.Errorf("expected scores on /v1/entrances: %s", body)
	}
}

// ---- GraphQL ----

func TestGraphQL_Entrances(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	payload := `{"query":"{ entrances(query: \"clinton\", latMin: 41.7, latMax: 42.1) { stationName source lat lon } sources { handle label box { lat_min } } }"}`
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Entrances []domain.MatchResult     `json:"entrances"`
			Sources   []map[string]interface{} `json:"sources"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Data.Entrances) != 1 || result.Data.Entrances[0].StationName != "Clinton" {
		t.Errorf("unexpected entrances: %+v", result.Data.Entrances)
	}
	if len(result.Data.Sources) != 2 {
		t.Errorf("expected 2 sources, got %+v", result.Data.Sources)
	}
}

func TestGraphQL_BadBody(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Health ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result map[string]interface{}
	json.Unmarshal(body, &result)
	if result["status"] != "ok" {
		t.Errorf("expected ok status, got %v", result["status"])
	}
}

func TestLegacyHealth_Deprecated(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, _, headers := get(t, app, "/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if headers["Sunset"] == "" {
		t.Error("expected Sunset header on legacy health route")
	}
}

func TestReady_CatalogOnly(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	status, body, _ := get(t, app, "/v1/ready")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var result struct {
		Checks map[string]string `json:"checks"`
	}
	json.Unmarshal(body, &result)
	if result.Checks["catalog"] != "ok (2 sources)" || result.Checks["database"] != "not configured" {
		t.Errorf("unexpected checks: %+v", result.Checks)
	}
}

func TestReady_CatalogBroken(t *testing.T) {
	catalog := &mockCatalog{listFn: func(ctx context.Context) ([]domain.SourceDescriptor, error) {
		return nil, errors.New("permission denied")
	}}
	app := setupApp(t, makeDeps(t, catalog, nil))

	status, _, _ := get(t, app, "/v1/ready")
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
}

// ---- Middleware ----

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	_, _, headers := get(t, app, "/v1/health")
	if v := headers["X-Api-Version"]; v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	_, _, headers := get(t, app, "/v1/sources")
	etag := headers["Etag"]
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/sources", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestCacheControl(t *testing.T) {
	app := setupApp(t, makeDeps(t, nil, nil))

	_, _, headers := get(t, app, "/v1/entrances?query=clinton")
	if cc := headers["Cache-Control"]; cc != "public, max-age=300" {
		t.Errorf("expected entrance cache policy, got %q", cc)
	}
	_, _, headers = get(t, app, "/v1/health")
	if cc := headers["Cache-Control"]; cc != "no-store" {
		t.Errorf("expected no-store on health, got %q", cc)
	}
}

// TestAccessLogMiddleware verifies structured access logging does not alter the response.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}
