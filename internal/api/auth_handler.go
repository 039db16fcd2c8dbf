package api

import (
	"log/slog"
	"net/http"

	"github.com/recallkit/recall-api/internal/api/shared"
	"github.com/recallkit/recall-api/internal/config"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/redact"
	"github.com/recallkit/recall-api/internal/service/auth"
)

// AuthHandler exchanges the shared passphrase for an access token.
type AuthHandler struct {
	tokenService auth.TokenService
	verifier     auth.PassphraseVerifier
	authConfig   config.AuthConfig
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	tokenService auth.TokenService,
	verifier auth.PassphraseVerifier,
	authConfig config.AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AuthHandler")
	}
	return &AuthHandler{
		tokenService: tokenService,
		verifier:     verifier,
		authConfig:   authConfig,
		logger:       logger.With(slog.String("component", "auth_handler")),
	}
}

// TokenRequest is the body for POST /auth/token.
type TokenRequest struct {
	Passphrase string `json:"passphrase" validate:"required"`
}

// TokenResponse carries the issued access token.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// Token handles POST /auth/token requests.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req TokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	if err := h.verifier.Compare(h.authConfig.PassphraseHash, req.Passphrase); err != nil {
		// Failed passphrase attempts are an operational signal.
		shared.RespondWithErrorAndLog(w, r,
			http.StatusUnauthorized, "Invalid passphrase", err,
			shared.WithElevatedLogLevel())
		return
	}

	token, err := h.tokenService.GenerateToken(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	log.Debug("access token issued")
	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:      token,
		ExpiresInSeconds: int64(h.authConfig.TokenLifetime().Seconds()),
	})
}
