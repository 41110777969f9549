package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/transit-dispatch/internal/config"
	"github.com/example/transit-dispatch/internal/directory"
	"github.com/example/transit-dispatch/internal/dispatch"
	"github.com/example/transit-dispatch/internal/fleet"
	"github.com/example/transit-dispatch/internal/ledger"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/notify"
	"github.com/example/transit-dispatch/internal/positions"
	"github.com/example/transit-dispatch/internal/search"
)

func testServer(t *testing.T) (*Server, *directory.MemoryDirectory, *positions.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := positions.NewMemoryStore(5 * time.Minute)
	dir := directory.NewMemoryDirectory()
	cls := fleet.NewStaticClassifier(models.ClassEconomy)
	led := ledger.New(nil, logger)
	cfg := config.DispatchConfig{
		WaitThreshold:  10 * time.Minute,
		MaxRadiusKm:    20,
		MaxAwaiting:    4,
		CandidateLimit: 20,
		PositionWindow: 5 * time.Minute,
	}
	coord := &dispatch.Coordinator{
		Ledger: led,
		Search: &search.Searcher{
			Positions: store,
			Fleet:     cls,
			Directory: dir,
			Window:    cfg.PositionWindow,
			Limit:     cfg.CandidateLimit,
		},
		Directory:       dir,
		Gateway:         notify.NewWSGateway(),
		Logger:          logger,
		Config:          cfg,
		DefaultSpeedMps: 10,
	}
	return NewServer(coord, store, nil, notify.NewWSGateway(), logger), dir, store
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestPublishAcceptFlow(t *testing.T) {
	srv, dir, _ := testServer(t)

	// driver reports a position and is logged in with a matching class
	w := doJSON(t, srv, "POST", "/internal/driver/positions", models.PositionSample{
		DriverID:   "d1",
		Loc:        models.Coord{Lat: 1, Lon: 1},
		Class:      models.ClassEconomy,
		ObservedAt: time.Now(),
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("position: %d %s", w.Code, w.Body)
	}
	dir.Login("d1", models.ClassEconomy)

	econ := models.ClassEconomy
	w = doJSON(t, srv, "POST", "/api/v1/transits", map[string]interface{}{
		"request_id": "t1",
		"pickup":     models.Coord{Lat: 1, Lon: 1},
		"class":      econ,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("publish: %d %s", w.Code, w.Body)
	}
	var sum models.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Status != "PENDING" || len(sum.Proposed) != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	w = doJSON(t, srv, "POST", "/api/v1/transits/t1/accept", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body)
	}
	json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Status != "ASSIGNED" || sum.Assigned == nil || *sum.Assigned != "d1" {
		t.Fatalf("after accept: %+v", sum)
	}

	// losing driver sees a conflict
	w = doJSON(t, srv, "POST", "/api/v1/transits/t1/accept", map[string]string{"driver_id": "d2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second accept: %d", w.Code)
	}
}

func TestDuplicatePublishConflicts(t *testing.T) {
	srv, _, _ := testServer(t)
	body := map[string]interface{}{"request_id": "t1", "pickup": models.Coord{Lat: 1, Lon: 1}}
	doJSON(t, srv, "POST", "/api/v1/transits", body)
	w := doJSON(t, srv, "POST", "/api/v1/transits", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate publish: %d", w.Code)
	}
}

func TestSummaryNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/transits/nope", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d", w.Code)
	}
}

func TestAcceptByUnproposedDriver(t *testing.T) {
	srv, _, _ := testServer(t)
	doJSON(t, srv, "POST", "/api/v1/transits", map[string]interface{}{
		"request_id": "t1", "pickup": models.Coord{Lat: 1, Lon: 1},
	})
	w := doJSON(t, srv, "POST", "/api/v1/transits/t1/accept", map[string]string{"driver_id": "nobody"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d %s", w.Code, w.Body)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _, _ := testServer(t)
	doJSON(t, srv, "POST", "/api/v1/transits", map[string]interface{}{
		"request_id": "t1", "pickup": models.Coord{Lat: 1, Lon: 1},
	})
	w := doJSON(t, srv, "POST", "/api/v1/transits/t1/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body)
	}
	var sum models.Summary
	json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Status != "CANCELLED" {
		t.Fatalf("status = %s", sum.Status)
	}
}

func TestRejectThenRetryFindsNobodyNew(t *testing.T) {
	srv, dir, store := testServer(t)
	store.Record(context.Background(), models.PositionSample{
		DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 1},
		Class: models.ClassEconomy, ObservedAt: time.Now(),
	})
	dir.Login("d1", models.ClassEconomy)

	doJSON(t, srv, "POST", "/api/v1/transits", map[string]interface{}{
		"request_id": "t1", "pickup": models.Coord{Lat: 1, Lon: 1},
	})
	w := doJSON(t, srv, "POST", "/api/v1/transits/t1/reject", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reject: %d", w.Code)
	}
	w = doJSON(t, srv, "POST", "/api/v1/transits/t1/dispatch", map[string]interface{}{
		"pickup": models.Coord{Lat: 1, Lon: 1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch: %d %s", w.Code, w.Body)
	}
	var sum models.Summary
	json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Status != "FAILED" {
		t.Fatalf("retry with only a rejected driver should exhaust, got %s", sum.Status)
	}
	if fmt.Sprint(sum.Proposed) != "[d1]" {
		t.Fatalf("proposed = %v", sum.Proposed)
	}
}
