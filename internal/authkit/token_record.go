package authkit

import (
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// ExpirySkew is subtracted from a token's expiry so that a call never starts
// with an access token that dies mid-flight.
const ExpirySkew = 30 * time.Second

// TokenRecord is one provider's credential set within a session.
// Records are values: stores and callers exchange copies, and a refresh
// replaces the record instead of mutating it.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	TokenType    string
}

// NewTokenRecord builds a record whose expiry is now plus the provider-reported lifetime.
func NewTokenRecord(accessToken string, refreshToken string, lifetime time.Duration, scope string, tokenType string, now time.Time) TokenRecord {
	if lifetime < 0 {
		lifetime = 0
	}
	return TokenRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(lifetime),
		Scope:        scope,
		TokenType:    tokenType,
	}
}

// HasRefreshToken reports whether the record can be refreshed without user interaction.
func (record TokenRecord) HasRefreshToken() bool {
	return record.RefreshToken != ""
}

// IsExpired reports whether now is within ExpirySkew of the expiry or past it.
func (record TokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(record.ExpiresAt.Add(-ExpirySkew))
}

// IsZero reports whether the record carries no access token.
func (record TokenRecord) IsZero() bool {
	return record.AccessToken == ""
}

// recordFromOAuth2 converts a token endpoint response into a record.
// A missing lifetime leaves the record expired immediately.
func recordFromOAuth2(token *oauth2.Token, fallbackRefreshToken string, now time.Time) TokenRecord {
	lifetime, reported := reportedLifetime(token)
	if !reported && !token.Expiry.IsZero() {
		lifetime = token.Expiry.Sub(now)
	}
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = fallbackRefreshToken
	}
	scope, _ := token.Extra("scope").(string)
	return NewTokenRecord(token.AccessToken, refreshToken, lifetime, scope, token.TokenType, now)
}

// reportedLifetime reads expires_in from the raw response. JSON bodies decode
// numbers as float64; form-encoded bodies yield strings.
func reportedLifetime(token *oauth2.Token) (time.Duration, bool) {
	switch value := token.Extra("expires_in").(type) {
	case float64:
		return time.Duration(value) * time.Second, true
	case int64:
		return time.Duration(value) * time.Second, true
	case string:
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	default:
		return 0, false
	}
}
