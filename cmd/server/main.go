package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tyemirov/tlink/internal/authkit"
	"github.com/tyemirov/tlink/internal/providerapi"
	"github.com/tyemirov/tlink/internal/web"
	"github.com/tyemirov/tlink/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (providerapi.GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tlink",
		Short:   "OAuth account linking for Spotify, YouTube, and Google with per-session token refresh",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	flags := rootCmd.Flags()
	flags.String("env_file", "", "Optional .env file loaded before reading APP_* variables")
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("backend_base_url", "http://127.0.0.1:8080", "Public base URL of this service; callback URLs derive from it")
	flags.String("frontend_base_url", "http://localhost:4200", "Frontend URL the OAuth callback redirects to")
	flags.String("session_header", authkit.DefaultSessionHeaderName, "Request header carrying the session id")
	for _, provider := range authkit.AllProviders() {
		flags.String(provider.String()+"_client_id", "", fmt.Sprintf("%s OAuth client id", provider))
		flags.String(provider.String()+"_client_secret", "", fmt.Sprintf("%s OAuth client secret", provider))
	}
	flags.String("state_signing_key", "", "HS256 secret used to sign OAuth state values")
	flags.Duration("state_ttl", 10*time.Minute, "Lifetime of an issued OAuth state")
	flags.String("jwt_signing_key", "", "HS256 secret for application session tokens")
	flags.String("jwt_issuer", "tlink", "Issuer claim of application session tokens")
	flags.Duration("app_session_ttl", 24*time.Hour, "Application session token lifetime")
	flags.Duration("session_idle_ttl", 24*time.Hour, "Idle time after which provider tokens are evicted; 0 disables eviction")
	flags.Duration("provider_timeout", authkit.DefaultProviderTimeout, "Timeout for every outbound provider call")
	flags.Float64("provider_rate_limit", 10, "Outbound provider requests per second, per provider")
	flags.Int("provider_rate_burst", 0, "Outbound provider request burst; 0 uses the rate limit")
	flags.String("database_url", "", "Database URL for users (postgres:// or sqlite://; leave empty for in-memory store)")
	flags.Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	flags.StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	flags.Bool("dev_endpoints", false, "Expose /auth/dev/info")

	flags.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
	})

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingStateSigningKey  = "config.missing_state_signing_key"
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidStateTTL         = "config.invalid_state_ttl"
	configCodeInvalidAppSessionTTL    = "config.invalid_app_session_ttl"
	configCodeInvalidProviderTimeout  = "config.invalid_provider_timeout"
	configCodeInvalidBackendBaseURL   = "config.invalid_backend_base_url"
	configCodeInvalidFrontendBaseURL  = "config.invalid_frontend_base_url"
	configCodeEnvFile                 = "config.env_file"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	if envFile := viper.GetString("env_file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return configError(configCodeEnvFile, err.Error())
		}
	}
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (authkit.ServerConfig, error) {
	stateSigningKey := viper.GetString("state_signing_key")
	if stateSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingStateSigningKey, "state_signing_key must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	stateTTL := viper.GetDuration("state_ttl")
	if stateTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidStateTTL, "state_ttl must be greater than zero")
	}

	appSessionTTL := viper.GetDuration("app_session_ttl")
	if appSessionTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAppSessionTTL, "app_session_ttl must be greater than zero")
	}

	providerTimeout := viper.GetDuration("provider_timeout")
	if providerTimeout <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidProviderTimeout, "provider_timeout must be greater than zero")
	}

	backendBaseURL := strings.TrimRight(viper.GetString("backend_base_url"), "/")
	if !isAbsoluteHTTPURL(backendBaseURL) {
		return authkit.ServerConfig{}, configError(configCodeInvalidBackendBaseURL, "backend_base_url must be an absolute http(s) URL")
	}
	frontendBaseURL := strings.TrimRight(viper.GetString("frontend_base_url"), "/")
	if !isAbsoluteHTTPURL(frontendBaseURL) {
		return authkit.ServerConfig{}, configError(configCodeInvalidFrontendBaseURL, "frontend_base_url must be an absolute http(s) URL")
	}

	providers := make(map[authkit.Provider]authkit.ProviderSettings, len(authkit.AllProviders()))
	for _, provider := range authkit.AllProviders() {
		providers[provider] = authkit.ProviderSettings{
			ClientID:     strings.TrimSpace(viper.GetString(provider.String() + "_client_id")),
			ClientSecret: strings.TrimSpace(viper.GetString(provider.String() + "_client_secret")),
		}
	}

	issuer := viper.GetString("jwt_issuer")
	if issuer == "" {
		issuer = "tlink"
	}

	return authkit.ServerConfig{
		BackendBaseURL:    backendBaseURL,
		FrontendBaseURL:   frontendBaseURL,
		Providers:         providers,
		StateSigningKey:   []byte(stateSigningKey),
		StateTTL:          stateTTL,
		AppJWTSigningKey:  []byte(jwtSigningKey),
		AppJWTIssuer:      issuer,
		AppSessionTTL:     appSessionTTL,
		SessionIdleTTL:    viper.GetDuration("session_idle_ttl"),
		ProviderTimeout:   providerTimeout,
		SessionHeaderName: viper.GetString("session_header"),
		DevEndpoints:      viper.GetBool("dev_endpoints"),
	}, nil
}

func isAbsoluteHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

type startupWarning struct {
	code    string
	message string
}

// startupWarnings reports configuration that boots but cannot complete a real OAuth round trip.
func startupWarnings(configuration authkit.ServerConfig) []startupWarning {
	var warnings []startupWarning
	for _, provider := range authkit.AllProviders() {
		settings := configuration.Settings(provider)
		if settings.ClientID == "" || settings.ClientSecret == "" {
			warnings = append(warnings, startupWarning{
				code:    "config.missing_client_credentials." + provider.String(),
				message: fmt.Sprintf("%s client id or secret is empty; linking will fail at the provider", provider),
			})
		}
	}
	if parsed, err := url.Parse(configuration.BackendBaseURL); err == nil {
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1":
			warnings = append(warnings, startupWarning{
				code:    "config.local_backend_base_url",
				message: "callback URLs point at a loopback host; register them with each provider",
			})
		}
	}
	return warnings
}

func runServer(command *cobra.Command, arguments []string) error {
	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	for _, warning := range startupWarnings(serverConfig) {
		logger.Warn(warning.message, zap.String("code", warning.code))
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	serveCtx, serveCancel := context.WithCancel(commandContext)
	defer serveCancel()

	clock := authkit.NewSystemClock()
	metricsRecorder := authkit.NewCounterMetrics()

	registry := authkit.NewProviderRegistry(serverConfig)
	nonceStore := authkit.NewMemoryNonceStore(serverConfig.StateTTL, clock)
	stateCodec, stateErr := authkit.NewStateCodec(serverConfig.StateSigningKey, serverConfig.StateTTL, clock, nonceStore)
	if stateErr != nil {
		return stateErr
	}
	tokenClient := authkit.NewTokenClient(registry, nil, serverConfig.ProviderTimeout, clock)

	sessionStore := authkit.NewMemorySessionTokenStore(serverConfig.SessionIdleTTL, clock)
	go sessionStore.RunJanitor(serveCtx, time.Minute)

	guard := authkit.NewGuard(sessionStore, tokenClient, clock, logger, metricsRecorder)

	var userStore authkit.UserStore
	if databaseURL != "" {
		persistentStore, storeErr := authkit.NewDatabaseUserStore(serveCtx, databaseURL, clock)
		if storeErr != nil {
			return storeErr
		}
		userStore = persistentStore
		logger.Info("using persistent user store", zap.String("driver", persistentStore.Driver()))
	} else {
		userStore = web.NewInMemoryUsers(clock)
		logger.Info("using in-memory user store")
	}

	googleValidator, validatorErr := buildGoogleTokenValidator(serveCtx)
	if validatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
	}
	apiClient := providerapi.NewClient(providerapi.ClientConfig{
		Timeout:   serverConfig.ProviderTimeout,
		RateLimit: viper.GetFloat64("provider_rate_limit"),
		Burst:     viper.GetInt("provider_rate_burst"),
	})
	audiences := make(map[authkit.Provider]string)
	for _, provider := range authkit.AllProviders() {
		audiences[provider] = serverConfig.Settings(provider).ClientID
	}
	profileFetcher := providerapi.NewProfileFetcher(apiClient, googleValidator, audiences, "")

	appTokenValidator, appValidatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: serverConfig.AppJWTSigningKey,
		Issuer:     serverConfig.AppJWTIssuer,
		Clock:      clock,
	})
	if appValidatorErr != nil {
		return appValidatorErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins, serverConfig.SessionHeader())
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/auth/client-config.js", func(contextGin *gin.Context) {
		web.ServeClientConfig(contextGin, web.ClientConfig{
			BaseURL:       serverConfig.BackendBaseURL,
			SessionHeader: serverConfig.SessionHeader(),
			Providers:     authkit.AllProviders(),
		})
	})

	authkit.MountAuthRoutes(router, serverConfig, authkit.AuthRouteDependencies{
		Links:     authkit.NewLinkBuilder(registry, stateCodec),
		States:    stateCodec,
		Exchanger: tokenClient,
		Profiles:  profileFetcher,
		Users:     userStore,
		Sessions:  sessionStore,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metricsRecorder,
	})
	router.GET("/auth/profile", appTokenValidator.GinMiddleware(""), web.HandleWhoAmI(logger, userStore))

	providerapi.MountAPIRoutes(router, serverConfig, providerapi.NewService(guard, apiClient), logger)
	router.GET("/api/users/:userId", web.HandleUserProfile(logger, userStore))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stopSignals:
		case <-serveCtx.Done():
			return
		}
		serveCancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.String("code", "server.shutdown"), zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", listenAddr),
		zap.String("backend_base_url", serverConfig.BackendBaseURL))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
