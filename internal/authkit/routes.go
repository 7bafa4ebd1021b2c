package authkit

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Callback failure codes carried to the client application in authError.
const (
	AuthErrorInvalidState       = "invalid_state"
	AuthErrorMissingCode        = "missing_code"
	AuthErrorTokenExchange      = "token_exchange_failed"
	AuthErrorProfileUnavailable = "profile_unavailable"
	AuthErrorSessionUnavailable = "session_unavailable"
)

// AuthRouteDependencies are the collaborators behind the /auth routes.
type AuthRouteDependencies struct {
	Links     *LinkBuilder
	States    *StateCodec
	Exchanger CodeExchanger
	Profiles  ProfileFetcher
	Users     UserStore
	Sessions  SessionTokenStore
	Clock     Clock
	Logger    *zap.Logger
	Metrics   MetricsRecorder
}

type metricsSnapshotter interface {
	Snapshot() map[string]int64
}

type authHandlers struct {
	configuration ServerConfig
	dependencies  AuthRouteDependencies
	logger        *zap.Logger
	clock         Clock
	metrics       MetricsRecorder
}

// MountAuthRoutes registers the provider login and callback routes plus session, logout and exchange routes.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, dependencies AuthRouteDependencies) {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := &authHandlers{
		configuration: configuration,
		dependencies:  dependencies,
		logger:        logger,
		clock:         clockOrSystem(dependencies.Clock),
		metrics:       metricsOrNoop(dependencies.Metrics),
	}

	router.GET("/auth/:provider/login", handlers.handleLogin)
	router.GET("/auth/:provider/callback", handlers.handleCallback)
	router.GET("/auth/session", RequireSessionHeader(configuration), handlers.handleSession)
	router.POST("/auth/logout", RequireSessionHeader(configuration), handlers.handleLogout)
	router.POST("/auth/oauth/exchange", handlers.handleExchange)
	if configuration.DevEndpoints {
		router.GET("/auth/dev/info", handlers.handleDevInfo)
	}
}

func (handlers *authHandlers) handleLogin(contextGin *gin.Context) {
	provider, parseErr := ParseProvider(contextGin.Param("provider"))
	if parseErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
		return
	}
	requestContext := contextGin.Request.Context()
	existingSessionID := strings.TrimSpace(contextGin.Query("sessionId"))
	if existingSessionID == "" {
		existingSessionID = strings.TrimSpace(contextGin.GetHeader(handlers.configuration.SessionHeader()))
	}
	// Only live sessions are carried through state; anything else starts a new session.
	if existingSessionID != "" && len(handlers.dependencies.Sessions.Providers(requestContext, existingSessionID)) == 0 {
		handlers.logger.Info("ignoring unknown session on login",
			zap.String("code", "auth.login.unknown_session"),
			zap.String("provider", provider.String()))
		existingSessionID = ""
	}
	authURL, buildErr := handlers.dependencies.Links.BuildAuthorizeURL(requestContext, provider, existingSessionID)
	if buildErr != nil {
		handlers.logger.Error("authorize url build failed",
			zap.String("code", "auth.login.build_failed"),
			zap.String("provider", provider.String()),
			zap.Error(buildErr))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorize_url_unavailable"})
		return
	}
	handlers.metrics.Increment(MetricAuthorizeURLIssued)
	contextGin.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

func (handlers *authHandlers) handleCallback(contextGin *gin.Context) {
	provider, parseErr := ParseProvider(contextGin.Param("provider"))
	if parseErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
		return
	}
	requestContext := contextGin.Request.Context()

	if providerError := strings.TrimSpace(contextGin.Query("error")); providerError != "" {
		handlers.logger.Info("provider reported authorization error",
			zap.String("code", "auth.callback.provider_error"),
			zap.String("provider", provider.String()),
			zap.String("provider_error", providerError))
		handlers.redirectFailure(contextGin, provider, providerError)
		return
	}

	existingSessionID, decodeErr := handlers.dependencies.States.Decode(requestContext, contextGin.Query("state"))
	if decodeErr != nil {
		handlers.logger.Warn("rejected callback state",
			zap.String("code", "auth.callback.invalid_state"),
			zap.String("provider", provider.String()),
			zap.Error(decodeErr))
		handlers.redirectFailure(contextGin, provider, AuthErrorInvalidState)
		return
	}

	code := strings.TrimSpace(contextGin.Query("code"))
	if code == "" {
		handlers.redirectFailure(contextGin, provider, AuthErrorMissingCode)
		return
	}

	exchange, exchangeErr := handlers.dependencies.Exchanger.ExchangeCode(requestContext, provider, code)
	if exchangeErr != nil {
		handlers.logger.Warn("code exchange failed",
			zap.String("code", "auth.callback.exchange_failed"),
			zap.String("provider", provider.String()),
			zap.Error(exchangeErr))
		handlers.redirectFailure(contextGin, provider, AuthErrorTokenExchange)
		return
	}

	profile, profileErr := handlers.dependencies.Profiles.FetchProfile(requestContext, provider, exchange)
	if profileErr != nil {
		handlers.logger.Warn("profile fetch failed",
			zap.String("code", "auth.callback.profile_failed"),
			zap.String("provider", provider.String()),
			zap.Error(profileErr))
		handlers.redirectFailure(contextGin, provider, AuthErrorProfileUnavailable)
		return
	}
	profile.Provider = provider
	user, upsertErr := handlers.dependencies.Users.CreateOrUpdateUser(requestContext, profile)
	if upsertErr != nil {
		handlers.logger.Error("user upsert failed",
			zap.String("code", "auth.callback.user_upsert_failed"),
			zap.String("provider", provider.String()),
			zap.Error(upsertErr))
		handlers.redirectFailure(contextGin, provider, AuthErrorProfileUnavailable)
		return
	}

	sessionID, storeErr := handlers.dependencies.Sessions.CreateOrUpdate(requestContext, existingSessionID, provider, exchange.Record)
	if storeErr != nil {
		handlers.logger.Error("session store write failed",
			zap.String("code", "auth.callback.session_failed"),
			zap.String("provider", provider.String()),
			zap.Error(storeErr))
		handlers.redirectFailure(contextGin, provider, AuthErrorSessionUnavailable)
		return
	}
	if !handlers.dependencies.Sessions.BindUser(requestContext, sessionID, user.ID) {
		handlers.logger.Error("session user bind failed",
			zap.String("code", "auth.callback.bind_failed"),
			zap.String("provider", provider.String()))
		handlers.redirectFailure(contextGin, provider, AuthErrorSessionUnavailable)
		return
	}

	handlers.metrics.Increment(MetricCallbackSuccess)
	handlers.logger.Info("provider linked",
		zap.String("provider", provider.String()),
		zap.String("user_id", user.ID),
		zap.Bool("continued_session", existingSessionID != ""))
	contextGin.Redirect(http.StatusFound, handlers.frontendURL(provider, url.Values{
		"sessionId": []string{sessionID},
		"userId":    []string{user.ID},
	}))
}

func (handlers *authHandlers) redirectFailure(contextGin *gin.Context, provider Provider, authError string) {
	handlers.metrics.Increment(MetricCallbackFailure)
	contextGin.Redirect(http.StatusFound, handlers.frontendURL(provider, url.Values{
		"authError": []string{authError},
	}))
}

func (handlers *authHandlers) frontendURL(provider Provider, query url.Values) string {
	target, parseErr := url.Parse(handlers.configuration.FrontendBaseURL)
	if parseErr != nil {
		target = &url.URL{Path: "/"}
	}
	merged := target.Query()
	for key, values := range query {
		merged[key] = values
	}
	target.RawQuery = merged.Encode()
	target.Fragment = "provider=" + provider.String()
	return target.String()
}

type linkedProviderView struct {
	Provider    Provider  `json:"provider"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Expired     bool      `json:"expired"`
	Refreshable bool      `json:"refreshable"`
}

func (handlers *authHandlers) handleSession(contextGin *gin.Context) {
	sessionID := SessionIDFromContext(contextGin)
	requestContext := contextGin.Request.Context()
	providers := handlers.dependencies.Sessions.Providers(requestContext, sessionID)
	if len(providers) == 0 {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	now := handlers.clock.Now()
	views := make([]linkedProviderView, 0, len(providers))
	for _, provider := range providers {
		record, ok := handlers.dependencies.Sessions.Get(requestContext, sessionID, provider)
		if !ok {
			continue
		}
		views = append(views, linkedProviderView{
			Provider:    provider,
			ExpiresAt:   record.ExpiresAt,
			Expired:     record.IsExpired(now),
			Refreshable: record.HasRefreshToken(),
		})
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"providers": views,
	})
}

func (handlers *authHandlers) handleLogout(contextGin *gin.Context) {
	if handlers.dependencies.Sessions.Delete(contextGin.Request.Context(), SessionIDFromContext(contextGin)) {
		handlers.metrics.Increment(MetricSessionLogout)
	}
	contextGin.Status(http.StatusNoContent)
}

func (handlers *authHandlers) handleExchange(contextGin *gin.Context) {
	var inbound struct {
		SessionID string `json:"sessionId"`
		UserID    string `json:"userId"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.SessionID) == "" || strings.TrimSpace(inbound.UserID) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	requestContext := contextGin.Request.Context()
	if len(handlers.dependencies.Sessions.Providers(requestContext, inbound.SessionID)) == 0 {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_session"})
		return
	}
	if !handlers.dependencies.Sessions.HasUser(requestContext, inbound.SessionID, inbound.UserID) {
		handlers.logger.Warn("exchange for a user not linked to the session",
			zap.String("code", "auth.exchange.user_not_linked"))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_linked"})
		return
	}
	user, userErr := handlers.dependencies.Users.GetUser(requestContext, inbound.UserID)
	if userErr != nil {
		if errors.Is(userErr, ErrUserNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_user"})
			return
		}
		handlers.logger.Error("user lookup failed",
			zap.String("code", "auth.exchange.user_lookup_failed"),
			zap.Error(userErr))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user_lookup_failed"})
		return
	}
	token, expiresAt, mintErr := MintAppJWT(handlers.clock, user, inbound.SessionID, handlers.configuration.AppJWTIssuer, handlers.configuration.AppJWTSigningKey, handlers.configuration.AppSessionTTL)
	if mintErr != nil {
		handlers.logger.Error("app token mint failed",
			zap.String("code", "auth.exchange.mint_failed"),
			zap.Error(mintErr))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token_unavailable"})
		return
	}
	handlers.metrics.Increment(MetricAppTokenMinted)
	contextGin.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      user,
	})
}

func (handlers *authHandlers) handleDevInfo(contextGin *gin.Context) {
	providers := make([]gin.H, 0, len(allProviders))
	for _, provider := range allProviders {
		sampleURL, _ := handlers.dependencies.Links.BuildAuthorizeURL(contextGin.Request.Context(), provider, "")
		providers = append(providers, gin.H{
			"provider":           provider,
			"clientIdConfigured": handlers.configuration.Settings(provider).ClientID != "",
			"redirectUri":        handlers.configuration.CallbackURL(provider),
			"sampleAuthorizeUrl": sampleURL,
		})
	}
	payload := gin.H{
		"backendBaseUrl":  handlers.configuration.BackendBaseURL,
		"frontendBaseUrl": handlers.configuration.FrontendBaseURL,
		"providers":       providers,
	}
	if snapshotter, ok := handlers.metrics.(metricsSnapshotter); ok {
		payload["metrics"] = snapshotter.Snapshot()
	}
	contextGin.JSON(http.StatusOK, payload)
}
