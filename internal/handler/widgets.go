package handler

import (
	"net/http"
	"strings"

	appI18n "github.com/mindmentor/questionnaire/internal/i18n"
	"github.com/mindmentor/questionnaire/internal/model"
)

// logoutPath is the fixed logout endpoint appended to the site prefix.
const logoutPath = "/secur/logout.jsp"

const defaultLogoURL = "/static/mindmentor-logo.png"

// handleWelcome serves the personalized welcome screen content.
func (h *Handler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	message := appI18n.T(r.Context(), "WelcomeDefault")
	if user.DisplayName != "" {
		message = appI18n.Td(r.Context(), "WelcomeBack", map[string]any{"Name": user.DisplayName})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"name":   user.DisplayName,
			"email":  user.Email,
			"avatar": user.AvatarURL,
		},
		"message": message,
		"introduction": map[string]any{
			"title":       appI18n.T(r.Context(), "AppIntroTitle"),
			"description": appI18n.T(r.Context(), "AppIntroDescription"),
			"features": []string{
				appI18n.T(r.Context(), "AppFeatureMood"),
				appI18n.T(r.Context(), "AppFeatureMeditation"),
				appI18n.T(r.Context(), "AppFeatureInsights"),
				appI18n.T(r.Context(), "AppFeatureGoals"),
				appI18n.T(r.Context(), "AppFeatureCommunity"),
			},
		},
	})
}

// handleBranding serves the header branding resources.
func (h *Handler) handleBranding(w http.ResponseWriter, r *http.Request) {
	logoURL := h.config.LogoURL
	if logoURL == "" {
		logoURL = defaultLogoURL
	}
	writeJSON(w, http.StatusOK, map[string]string{"logo_url": logoURL})
}

// handleLogoutLink serves the logout URL for the hosted site, plus a guest
// flag so the front end can hide the control for unauthenticated visitors.
func (h *Handler) handleLogoutLink(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"guest": h.authenticatedUser(r) == nil,
		"url":   logoutLink(h.config.SitePath),
	})
}

// logoutLink derives the logout URL from the site base path: the site prefix
// is the base path without the trailing "/s" segment.
func logoutLink(sitePath string) string {
	prefix := strings.TrimRight(sitePath, "/")
	if n := len(prefix); n >= 2 && prefix[n-2] == '/' && (prefix[n-1] == 's' || prefix[n-1] == 'S') {
		prefix = prefix[:n-2]
	}
	return prefix + logoutPath
}
