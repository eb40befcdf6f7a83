package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/geo"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/services"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type stubStoreReader struct {
	stores     []*types.Store
	err        error
	lastFilter repos.StoreFilter
}

func (s *stubStoreReader) Upsert(ctx context.Context, tx *gorm.DB, stores []*types.Store) (*repos.UpsertResult, error) {
	return nil, nil
}

func (s *stubStoreReader) UpsertSummaries(ctx context.Context, tx *gorm.DB, summaries []repos.StoreSummary) (*repos.SummaryWriteResult, error) {
	return nil, nil
}

func (s *stubStoreReader) GetStores(ctx context.Context, tx *gorm.DB, filter repos.StoreFilter) ([]*types.Store, error) {
	s.lastFilter = filter
	return s.stores, s.err
}

func (s *stubStoreReader) FindNearby(ctx context.Context, tx *gorm.DB, lat, lng, radiusMeters float64) ([]repos.StoreWithDistance, error) {
	return nil, nil
}

type stubSearch struct {
	hits       []services.SearchHit
	err        error
	lastZip    string
	lastRadius float64
}

func (s *stubSearch) SearchByZip(ctx context.Context, zip string, radiusMiles float64) ([]services.SearchHit, error) {
	s.lastZip = zip
	s.lastRadius = radiusMiles
	return s.hits, s.err
}

func storesRouter(h *StoresHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/stores", h.ListStores)
	r.GET("/api/stores/:place_id", h.GetStore)
	r.GET("/api/search", h.SearchByZip)
	return r
}

func TestListStoresStateFilter(t *testing.T) {
	stores := &stubStoreReader{stores: []*types.Store{{PlaceID: "p1", Name: "One"}}}
	r := storesRouter(NewStoresHandler(stores, &stubSearch{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stores?state=FL,GA&unsummarized=true&limit=25&offset=5", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	filter := stores.lastFilter
	if filter.Mode != repos.StoreModeByState {
		t.Fatalf("mode: %q", filter.Mode)
	}
	if len(filter.States) != 2 || filter.States[0] != "FL" || filter.States[1] != "GA" {
		t.Fatalf("states: %+v", filter.States)
	}
	if !filter.OnlyUnsummarized || filter.Limit != 25 || filter.Offset != 5 {
		t.Fatalf("filter: %+v", filter)
	}
}

func TestListStoresInvalidFilterIsBadRequest(t *testing.T) {
	stores := &stubStoreReader{err: fmt.Errorf("%w: limit must be positive", repos.ErrInvalidFilter)}
	r := storesRouter(NewStoresHandler(stores, &stubSearch{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stores?limit=-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", w.Code)
	}
}

func TestGetStoreNotFound(t *testing.T) {
	r := storesRouter(NewStoresHandler(&stubStoreReader{}, &stubSearch{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stores/missing-place", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", w.Code)
	}
}

func TestSearchByZipErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid_zip", err: fmt.Errorf("%w: %q", geo.ErrInvalidZip, "abc"), want: http.StatusBadRequest},
		{name: "unknown_zip", err: fmt.Errorf("%w: 99999", geo.ErrZipNotFound), want: http.StatusNotFound},
		{name: "backend_failure", err: fmt.Errorf("db gone"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := storesRouter(NewStoresHandler(&stubStoreReader{}, &stubSearch{err: tc.err}))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/search?zip=99999&radius=5", nil)
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("status: want=%d got=%d", tc.want, w.Code)
			}
		})
	}
}

func TestSearchByZipDefaultsRadius(t *testing.T) {
	search := &stubSearch{}
	r := storesRouter(NewStoresHandler(&stubStoreReader{}, search))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?zip=78701", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", w.Code)
	}
	if search.lastRadius != 10.0 {
		t.Fatalf("default radius: want=10 got=%v", search.lastRadius)
	}
	if search.lastZip != "78701" {
		t.Fatalf("zip: %q", search.lastZip)
	}
}

func TestSearchByZipRejectsNonPositiveRadius(t *testing.T) {
	r := storesRouter(NewStoresHandler(&stubStoreReader{}, &stubSearch{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search?zip=78701&radius=0", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", w.Code)
	}
}
