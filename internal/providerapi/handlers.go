package providerapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tlink/internal/authkit"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit    = 10
	maxSpotifySearchLimit = 50
	maxYouTubeSearchLimit = 25
	playlistPageSize      = "50"
)

type apiHandlers struct {
	service *Service
	logger  *zap.Logger
}

// MountAPIRoutes registers the /api/spotify and /api/youtube routes behind the session header.
func MountAPIRoutes(router gin.IRouter, configuration authkit.ServerConfig, service *Service, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := &apiHandlers{service: service, logger: logger}

	api := router.Group("/api", authkit.RequireSessionHeader(configuration))

	spotify := api.Group("/spotify")
	spotify.GET("/playlists", handlers.spotifyPlaylists)
	spotify.GET("/search", handlers.spotifySearch)
	spotify.GET("/player/state", handlers.spotifyPlayerState)
	spotify.GET("/player/access-token", handlers.spotifyAccessToken)
	spotify.POST("/player/play", handlers.spotifyCommand(http.MethodPut, "/me/player/play"))
	spotify.POST("/player/pause", handlers.spotifyCommand(http.MethodPut, "/me/player/pause"))
	spotify.POST("/player/next", handlers.spotifyCommand(http.MethodPost, "/me/player/next"))
	spotify.POST("/player/previous", handlers.spotifyCommand(http.MethodPost, "/me/player/previous"))
	spotify.POST("/player/transfer", handlers.spotifyTransfer)
	spotify.POST("/player/play/track", handlers.spotifyPlayTrack)

	youtube := api.Group("/youtube")
	youtube.GET("/playlists", handlers.youtubePlaylists)
	youtube.GET("/playlists/:playlistId/items", handlers.youtubePlaylistItems)
	youtube.GET("/search", handlers.youtubeSearch)
}

func (handlers *apiHandlers) call(contextGin *gin.Context, provider authkit.Provider, request Request) (Response, bool) {
	response, err := handlers.service.Call(contextGin.Request.Context(), authkit.SessionIDFromContext(contextGin), provider, request)
	if err != nil {
		handlers.writeError(contextGin, provider, err)
		return Response{}, false
	}
	return response, true
}

func (handlers *apiHandlers) spotifyPlaylists(contextGin *gin.Context) {
	response, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{
		Path:  "/me/playlists",
		Query: url.Values{"limit": {playlistPageSize}},
	})
	if !ok {
		return
	}
	playlists, err := translateSpotifyPlaylists(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderSpotify, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (handlers *apiHandlers) spotifySearch(contextGin *gin.Context) {
	query := strings.TrimSpace(contextGin.Query("query"))
	if query == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_query"})
		return
	}
	response, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{
		Path: "/search",
		Query: url.Values{
			"q":     {query},
			"type":  {"track"},
			"limit": {strconv.Itoa(searchLimit(contextGin, maxSpotifySearchLimit))},
		},
	})
	if !ok {
		return
	}
	tracks, err := translateSpotifySearch(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderSpotify, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func (handlers *apiHandlers) spotifyPlayerState(contextGin *gin.Context) {
	response, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{Path: "/me/player"})
	if !ok {
		return
	}
	state, err := translateSpotifyPlayer(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderSpotify, err)
		return
	}
	contextGin.JSON(http.StatusOK, state)
}

func (handlers *apiHandlers) spotifyAccessToken(contextGin *gin.Context) {
	record, err := handlers.service.AccessToken(contextGin.Request.Context(), authkit.SessionIDFromContext(contextGin), authkit.ProviderSpotify)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderSpotify, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"accessToken": record.AccessToken,
		"expiresAt":   record.ExpiresAt,
	})
}

func (handlers *apiHandlers) spotifyCommand(method string, path string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if _, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{Method: method, Path: path}); !ok {
			return
		}
		contextGin.Status(http.StatusNoContent)
	}
}

func (handlers *apiHandlers) spotifyTransfer(contextGin *gin.Context) {
	var inbound struct {
		DeviceID string `json:"deviceId"`
		Play     bool   `json:"play"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.DeviceID) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if _, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{
		Method: http.MethodPut,
		Path:   "/me/player",
		Body: map[string]interface{}{
			"device_ids": []string{inbound.DeviceID},
			"play":       inbound.Play,
		},
	}); !ok {
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (handlers *apiHandlers) spotifyPlayTrack(contextGin *gin.Context) {
	var inbound struct {
		URI        string `json:"uri"`
		ID         string `json:"id"`
		PositionMs int64  `json:"positionMs"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	trackURI := strings.TrimSpace(inbound.URI)
	if trackURI == "" && strings.TrimSpace(inbound.ID) != "" {
		trackURI = "spotify:track:" + strings.TrimSpace(inbound.ID)
	}
	if trackURI == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_track"})
		return
	}
	body := map[string]interface{}{"uris": []string{trackURI}}
	if inbound.PositionMs > 0 {
		body["position_ms"] = inbound.PositionMs
	}
	if _, ok := handlers.call(contextGin, authkit.ProviderSpotify, Request{
		Method: http.MethodPut,
		Path:   "/me/player/play",
		Body:   body,
	}); !ok {
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (handlers *apiHandlers) youtubePlaylists(contextGin *gin.Context) {
	response, ok := handlers.call(contextGin, authkit.ProviderYouTube, Request{
		Path: "/playlists",
		Query: url.Values{
			"part":       {"snippet,contentDetails"},
			"mine":       {"true"},
			"maxResults": {playlistPageSize},
		},
	})
	if !ok {
		return
	}
	playlists, err := translateYouTubePlaylists(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderYouTube, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"playlists": playlists})
}

func (handlers *apiHandlers) youtubePlaylistItems(contextGin *gin.Context) {
	response, ok := handlers.call(contextGin, authkit.ProviderYouTube, Request{
		Path: "/playlistItems",
		Query: url.Values{
			"part":       {"snippet,contentDetails"},
			"playlistId": {contextGin.Param("playlistId")},
			"maxResults": {playlistPageSize},
		},
	})
	if !ok {
		return
	}
	videos, err := translateYouTubePlaylistItems(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderYouTube, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"items": videos})
}

func (handlers *apiHandlers) youtubeSearch(contextGin *gin.Context) {
	query := strings.TrimSpace(contextGin.Query("query"))
	if query == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_query"})
		return
	}
	response, ok := handlers.call(contextGin, authkit.ProviderYouTube, Request{
		Path: "/search",
		Query: url.Values{
			"part":       {"snippet"},
			"type":       {"video"},
			"q":          {query},
			"maxResults": {strconv.Itoa(searchLimit(contextGin, maxYouTubeSearchLimit))},
		},
	})
	if !ok {
		return
	}
	videos, err := translateYouTubeSearch(response.Body)
	if err != nil {
		handlers.writeError(contextGin, authkit.ProviderYouTube, err)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"videos": videos})
}

func searchLimit(contextGin *gin.Context, maximum int) int {
	limit, err := strconv.Atoi(contextGin.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maximum {
		return maximum
	}
	return limit
}

// writeError maps session, refresh and provider failures onto HTTP responses.
func (handlers *apiHandlers) writeError(contextGin *gin.Context, provider authkit.Provider, err error) {
	status, code := classifyError(provider, err)
	fields := []zap.Field{
		zap.String("code", "api."+code),
		zap.String("provider", provider.String()),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		handlers.logger.Warn("provider call failed", fields...)
	} else {
		handlers.logger.Info("provider call rejected", fields...)
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
}

func classifyError(provider authkit.Provider, err error) (int, string) {
	var statusErr *StatusError
	switch {
	case errors.Is(err, authkit.ErrSessionNotFound):
		return http.StatusUnauthorized, "invalid_session"
	case errors.Is(err, authkit.ErrRefreshUnavailable):
		return http.StatusUnauthorized, "reauthorization_required"
	case errors.Is(err, authkit.ErrRefreshFailed):
		return http.StatusUnauthorized, "refresh_failed"
	case errors.Is(err, ErrParseFailed):
		return http.StatusBadGateway, "parse_failed"
	case errors.As(err, &statusErr):
		switch statusErr.Status {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "reauthorization_required"
		case http.StatusForbidden:
			return http.StatusForbidden, "insufficient_scope"
		case http.StatusNotFound:
			return http.StatusNotFound, "not_found"
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, "rate_limited"
		}
		return http.StatusBadGateway, provider.String() + "_unreachable"
	default:
		return http.StatusBadGateway, provider.String() + "_unreachable"
	}
}
