package handlers

import (
	"github.com/gin-gonic/gin"

	"symptom-assistant-server/internal/places"
	"symptom-assistant-server/internal/utils"
)

// ProviderHandler recommends nearby healthcare providers for symptoms.
type ProviderHandler struct {
	Finder *places.Finder
}

func NewProviderHandler(finder *places.Finder) *ProviderHandler {
	return &ProviderHandler{Finder: finder}
}

// FindProviders picks a specialty for the symptoms and searches near the
// given coordinates or zipcode.
func (h *ProviderHandler) FindProviders(c *gin.Context) {
	var req places.Request
	if !utils.BindAndValidate(c, &req) {
		return
	}
	rec, err := h.Finder.Find(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Healthcare providers found", rec)
}
