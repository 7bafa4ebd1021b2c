package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errEmptyProviderUserID = errors.New("user_store.empty_provider_user_id")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseUserStore persists application users using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	UserID         string `gorm:"column:user_id;primaryKey"`
	Provider       string `gorm:"column:provider;not null;uniqueIndex:idx_users_provider_account"`
	ProviderUserID string `gorm:"column:provider_user_id;not null;uniqueIndex:idx_users_provider_account"`
	Email          string `gorm:"column:email;index;not null;default:''"`
	Name           string `gorm:"column:name;not null;default:''"`
	Picture        string `gorm:"column:picture;not null;default:''"`
	GivenName      string `gorm:"column:given_name;not null;default:''"`
	FamilyName     string `gorm:"column:family_name;not null;default:''"`
	EmailVerified  bool   `gorm:"column:email_verified;not null;default:false"`
	CreatedAtUnix  int64  `gorm:"column:created_at_unix;not null"`
	LastLoginUnix  int64  `gorm:"column:last_login_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

func (record userRecord) toUser() User {
	return User{
		ID:             record.UserID,
		Provider:       Provider(record.Provider),
		ProviderUserID: record.ProviderUserID,
		Email:          record.Email,
		Name:           record.Name,
		Picture:        record.Picture,
		GivenName:      record.GivenName,
		FamilyName:     record.FamilyName,
		EmailVerified:  record.EmailVerified,
		CreatedAt:      time.Unix(record.CreatedAtUnix, 0).UTC(),
		LastLoginAt:    time.Unix(record.LastLoginUnix, 0).UTC(),
	}
}

// NewDatabaseUserStore constructs a GORM-backed store for a postgres:// or sqlite:// URL.
func NewDatabaseUserStore(ctx context.Context, databaseURL string, clock Clock) (*DatabaseUserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseUserStore{
		db:          gormDB,
		driverLabel: driverLabel,
		clock:       clockOrSystem(clock),
	}, nil
}

// CreateOrUpdateUser inserts the profile or refreshes the stored copy, keeping the original creation time.
func (store *DatabaseUserStore) CreateOrUpdateUser(ctx context.Context, profile UserProfile) (User, error) {
	if strings.TrimSpace(profile.ProviderUserID) == "" {
		return User{}, fmt.Errorf("user_store.upsert.%s: %w", store.driverLabel, errEmptyProviderUserID)
	}
	nowUnix := store.clock.Now().Unix()
	record := userRecord{
		UserID:         UserIDFor(profile.Provider, profile.ProviderUserID),
		Provider:       profile.Provider.String(),
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Name:           profile.Name,
		Picture:        profile.Picture,
		GivenName:      profile.GivenName,
		FamilyName:     profile.FamilyName,
		EmailVerified:  profile.EmailVerified,
		CreatedAtUnix:  nowUnix,
		LastLoginUnix:  nowUnix,
	}
	upsertErr := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "name", "picture", "given_name", "family_name", "email_verified", "last_login_unix",
		}),
	}).Create(&record).Error
	if upsertErr != nil {
		return User{}, fmt.Errorf("user_store.upsert.%s: %w", store.driverLabel, upsertErr)
	}
	return store.GetUser(ctx, record.UserID)
}

// GetUser loads a user by application user id.
func (store *DatabaseUserStore) GetUser(ctx context.Context, userID string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.get.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.get.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
