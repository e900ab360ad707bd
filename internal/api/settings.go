package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bher20/ebillmanager/internal/cron"
	"github.com/bher20/ebillmanager/internal/notification"
	"github.com/bher20/ebillmanager/internal/storage"
)

const secretMask = "********"

// SettingResponse carries one runtime setting.
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// @Summary Get the billing run interval
// @Description Empty when the worker uses its configured interval.
// @Tags settings
// @Produce json
// @Success 200 {object} SettingResponse
// @Router /api/v1/settings/refresh_interval [get]
func (s *server) handleGetRefreshInterval(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errStoreMissing)
		return
	}
	val, err := s.store.GetSetting(r.Context(), storage.SettingRefreshInterval)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingResponse{Key: storage.SettingRefreshInterval, Value: val})
}

// @Summary Set the billing run interval
// @Description Seconds or a five field cron expression. Running workers pick it up on their next poll.
// @Tags settings
// @Accept json
// @Produce json
// @Param request body SettingResponse true "New interval; key is ignored"
// @Success 200 {object} SettingResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/settings/refresh_interval [put]
func (s *server) handlePutRefreshInterval(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errStoreMissing)
		return
	}
	var req SettingResponse
	if !decodeBody(w, r, &req) {
		return
	}
	val := strings.TrimSpace(req.Value)
	if _, err := cron.ParseInterval(val); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:      err.Error(),
			Kind:       "invalid_input",
			Field:      "value",
			Constraint: "seconds or a cron expression",
		})
		return
	}
	if err := s.store.SetSetting(r.Context(), storage.SettingRefreshInterval, val); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingResponse{Key: storage.SettingRefreshInterval, Value: val})
}

// @Summary Get the email configuration
// @Description Secrets are masked.
// @Tags settings
// @Produce json
// @Success 200 {object} storage.EmailConfig
// @Router /api/v1/settings/email [get]
func (s *server) handleGetEmailConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.notify.GetConfig(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cfg == nil {
		cfg = &storage.EmailConfig{}
	}
	out := *cfg
	if out.Password != "" {
		out.Password = secretMask
	}
	if out.APIKey != "" {
		out.APIKey = secretMask
	}
	writeJSON(w, http.StatusOK, out)
}

// @Summary Save the email configuration
// @Description A masked secret keeps the stored value.
// @Tags settings
// @Accept json
// @Param request body storage.EmailConfig true "Email configuration"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/settings/email [put]
func (s *server) handlePutEmailConfig(w http.ResponseWriter, r *http.Request) {
	var req storage.EmailConfig
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == secretMask || req.APIKey == secretMask {
		existing, err := s.notify.GetConfig(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if existing != nil {
			if req.Password == secretMask {
				req.Password = existing.Password
			}
			if req.APIKey == secretMask {
				req.APIKey = existing.APIKey
			}
		}
	}

	if err := s.notify.SaveConfig(r.Context(), req); err != nil {
		if errors.Is(err, notification.ErrInvalidConfig) {
			badRequest(w, err.Error())
			return
		}
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testEmailRequest struct {
	Config storage.EmailConfig `json:"config"`
	To     string              `json:"to"`
}

// @Summary Send a test email
// @Description Sends a short message with the given configuration without saving it.
// @Tags settings
// @Accept json
// @Param request body testEmailRequest true "Configuration and recipient"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/settings/email/test [post]
func (s *server) handleTestEmailConfig(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.To == "" {
		badRequest(w, "to is required")
		return
	}
	if err := s.notify.TestConfig(r.Context(), req.Config, req.To); err != nil {
		badRequest(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
