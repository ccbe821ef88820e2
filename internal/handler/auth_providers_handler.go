package handler

import (
	"net/http"
)

// ProvidersConfig determines which login providers are offered.
type ProvidersConfig struct {
	// Google: include "google" when the OAuth client is configured
	Google bool
	// GitHub: include "github" when the OAuth client is configured
	GitHub bool
	// EnableEmail: include "email" when ENABLE_EMAIL_LOGIN=true
	EnableEmail bool
}

// ProvidersHandler handles GET /api/auth/providers
type ProvidersHandler struct {
	cfg ProvidersConfig
}

// NewProvidersHandler creates a ProvidersHandler with the given configuration.
func NewProvidersHandler(cfg ProvidersConfig) *ProvidersHandler {
	return &ProvidersHandler{cfg: cfg}
}

// providersResponse is the JSON response shape for GET /api/auth/providers.
type providersResponse struct {
	Providers []string `json:"providers"`
}

// Providers handles GET /api/auth/providers. Order is fixed: email, google, github.
func (h *ProvidersHandler) Providers(w http.ResponseWriter, r *http.Request) {
	providers := []string{}
	if h.cfg.EnableEmail {
		providers = append(providers, "email")
	}
	if h.cfg.Google {
		providers = append(providers, "google")
	}
	if h.cfg.GitHub {
		providers = append(providers, "github")
	}
	writeJSON(w, http.StatusOK, providersResponse{Providers: providers})
}
