// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/craftsquare/campaign-engine/internal/errors"
	"github.com/craftsquare/campaign-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *zap.Logger
}

// SendAdvertisement creates a campaign for a product and fans out recipient
// rows for every registered user. Sending starts asynchronously.
func (c *CampaignController) SendAdvertisement(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	result, err := c.CampaignService.InitiateCampaign(productID)
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// SendCampaign runs exactly one dispatcher batch and returns its progress.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	result, err := c.CampaignService.DispatchBatch(r.Context(), campaignID)
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.CampaignService.ListCampaigns()
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": campaigns,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	details, err := c.CampaignService.GetCampaignDetails(campaignID)
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// ListFailures returns the recipients that exhausted their send attempts.
func (c *CampaignController) ListFailures(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.Atoi(chi.URLParam(r, "campaignID"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	failures, err := c.CampaignService.ListFailures(campaignID)
	if err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": failures,
	})
}

// TestTemplate sends one rendering of the advertisement to the given address
// without touching campaign or recipient state.
func (c *CampaignController) TestTemplate(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(body.Email); err != nil {
		http.Error(w, "invalid email address", http.StatusBadRequest)
		return
	}

	if err := c.CampaignService.SendTestEmail(r.Context(), productID, body.Email); err != nil {
		c.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sent_to": body.Email,
	})
}

func (c *CampaignController) writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, appErrors.ErrNoRecipients):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		c.Logger.Error("campaign request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
