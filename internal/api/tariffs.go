package api

import (
	"fmt"
	"net/http"

	"github.com/bher20/ebillmanager/internal/tariffs"
)

// @Summary List tariff presets
// @Tags tariffs
// @Produce json
// @Success 200 {array} tariffs.Preset
// @Router /api/v1/tariffs [get]
func (s *server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tariffs.Presets())
}

// @Summary Get a tariff preset
// @Tags tariffs
// @Produce json
// @Param key path string true "Preset key"
// @Success 200 {object} tariffs.Preset
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/tariffs/{key} [get]
func (s *server) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	p, ok := tariffs.Get(key)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", tariffs.ErrUnknownTariff, key))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
