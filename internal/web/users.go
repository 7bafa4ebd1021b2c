package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tlink/internal/authkit"
	"github.com/tyemirov/tlink/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var errEmptyProviderUserID = errors.New("user_store.empty_provider_user_id")

// InMemoryUsers is a user store used when no database URL is configured.
type InMemoryUsers struct {
	mutex sync.Mutex
	users map[string]authkit.User
	clock authkit.Clock
}

// NewInMemoryUsers constructs an empty store.
func NewInMemoryUsers(clock authkit.Clock) *InMemoryUsers {
	if clock == nil {
		clock = authkit.NewSystemClock()
	}
	return &InMemoryUsers{users: make(map[string]authkit.User), clock: clock}
}

// CreateOrUpdateUser inserts or refreshes a user keyed by provider and provider user id.
func (store *InMemoryUsers) CreateOrUpdateUser(ctx context.Context, profile authkit.UserProfile) (authkit.User, error) {
	if strings.TrimSpace(profile.ProviderUserID) == "" {
		return authkit.User{}, fmt.Errorf("user_store.upsert.memory: %w", errEmptyProviderUserID)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	userID := authkit.UserIDFor(profile.Provider, profile.ProviderUserID)
	user, exists := store.users[userID]
	if !exists {
		user = authkit.User{ID: userID, CreatedAt: now}
	}
	user.Provider = profile.Provider
	user.ProviderUserID = profile.ProviderUserID
	user.Email = profile.Email
	user.Name = profile.Name
	user.Picture = profile.Picture
	user.GivenName = profile.GivenName
	user.FamilyName = profile.FamilyName
	user.EmailVerified = profile.EmailVerified
	user.LastLoginAt = now
	store.users[userID] = user
	return user, nil
}

// GetUser returns a user by application user id.
func (store *InMemoryUsers) GetUser(ctx context.Context, userID string) (authkit.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	user, ok := store.users[userID]
	if !ok {
		return authkit.User{}, fmt.Errorf("user_store.get.memory: %w", authkit.ErrUserNotFound)
	}
	return user, nil
}

// HandleUserProfile serves GET /api/users/:userId.
func HandleUserProfile(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}
	return func(contextGin *gin.Context) {
		user, err := users.GetUser(contextGin.Request.Context(), contextGin.Param("userId"))
		if err != nil {
			if errors.Is(err, authkit.ErrUserNotFound) {
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
				return
			}
			logger.Error("user lookup error",
				zap.String("code", "api.users.lookup_error"),
				zap.Error(err))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, user)
	}
}

// HandleWhoAmI resolves the profile behind a validated application session token.
func HandleWhoAmI(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		claimsValue, found := contextGin.Get(sessionvalidator.DefaultContextKey)
		if !found {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.profile.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := claimsValue.(*sessionvalidator.Claims)
		if !ok || claims.GetUserID() == "" {
			logger.Warn("invalid auth claims on context",
				zap.String("code", "api.profile.invalid_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		user, profileErr := users.GetUser(contextGin.Request.Context(), claims.GetUserID())
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.profile.profile_missing"),
					zap.String("user_id", claims.GetUserID()))
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.profile.profile_error"),
				zap.String("user_id", claims.GetUserID()),
				zap.Error(profileErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"user":      user,
			"sessionId": claims.GetSessionID(),
			"expires":   claims.GetExpiresAt(),
		})
	}
}
