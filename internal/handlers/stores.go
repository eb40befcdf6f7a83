package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voltbase/scooterdex-backend/internal/geo"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/services"
)

type StoresHandler struct {
	stores repos.StoreRepo
	search services.SearchService
}

func NewStoresHandler(stores repos.StoreRepo, search services.SearchService) *StoresHandler {
	return &StoresHandler{stores: stores, search: search}
}

// GET /api/stores?state=FL,GA&unsummarized=true&limit=50&offset=0
func (h *StoresHandler) ListStores(c *gin.Context) {
	filter := repos.StoreFilter{Mode: repos.StoreModeAll, Limit: 100}

	if states := strings.TrimSpace(c.Query("state")); states != "" {
		filter.Mode = repos.StoreModeByState
		filter.States = strings.Split(states, ",")
		filter.OnlyUnsummarized = c.Query("unsummarized") == "true"
	} else if c.Query("unsummarized") == "true" {
		filter.Mode = repos.StoreModeUnsummarized
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_offset", err)
			return
		}
		filter.Offset = offset
	}

	stores, err := h.stores.GetStores(c.Request.Context(), nil, filter)
	if err != nil {
		if errors.Is(err, repos.ErrInvalidFilter) {
			RespondError(c, http.StatusBadRequest, "invalid_filter", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "store_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"stores": stores, "count": len(stores)})
}

// GET /api/stores/:place_id
func (h *StoresHandler) GetStore(c *gin.Context) {
	placeID := c.Param("place_id")
	stores, err := h.stores.GetStores(c.Request.Context(), nil, repos.StoreFilter{
		Mode:    repos.StoreModeSingle,
		PlaceID: placeID,
		Limit:   1,
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "store_lookup_failed", err)
		return
	}
	if len(stores) == 0 {
		RespondError(c, http.StatusNotFound, "store_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"store": stores[0]})
}

// GET /api/search?zip=94107&radius=5
func (h *StoresHandler) SearchByZip(c *gin.Context) {
	zip := c.Query("zip")
	radiusMiles := 10.0
	if v := c.Query("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_radius", err)
			return
		}
		radiusMiles = parsed
	}

	hits, err := h.search.SearchByZip(c.Request.Context(), zip, radiusMiles)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrInvalidZip):
			RespondError(c, http.StatusBadRequest, "invalid_zip", err)
		case errors.Is(err, geo.ErrZipNotFound):
			RespondError(c, http.StatusNotFound, "zip_not_found", err)
		default:
			RespondError(c, http.StatusInternalServerError, "search_failed", err)
		}
		return
	}
	RespondOK(c, gin.H{"results": hits, "count": len(hits)})
}
