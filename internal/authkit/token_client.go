package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultProviderTimeout bounds every call to a provider endpoint.
const DefaultProviderTimeout = 10 * time.Second

// Exchange is the result of redeeming an authorization code.
type Exchange struct {
	Record  TokenRecord
	IDToken string
}

// CodeExchanger redeems authorization codes.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, provider Provider, code string) (Exchange, error)
}

// TokenRefresher performs the refresh-token grant.
type TokenRefresher interface {
	Refresh(ctx context.Context, provider Provider, record TokenRecord) (TokenRecord, error)
}

// TokenClient talks to provider token endpoints.
type TokenClient struct {
	registry   *ProviderRegistry
	httpClient *http.Client
	timeout    time.Duration
	clock      Clock
}

// NewTokenClient constructs a TokenClient; timeout <= 0 uses DefaultProviderTimeout.
func NewTokenClient(registry *ProviderRegistry, httpClient *http.Client, timeout time.Duration, clock Clock) *TokenClient {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TokenClient{
		registry:   registry,
		httpClient: httpClient,
		timeout:    timeout,
		clock:      clockOrSystem(clock),
	}
}

// ExchangeCode redeems code at the provider's token endpoint.
func (client *TokenClient) ExchangeCode(ctx context.Context, provider Provider, code string) (Exchange, error) {
	config, err := client.registry.Config(provider)
	if err != nil {
		return Exchange{}, err
	}
	if strings.TrimSpace(code) == "" {
		return Exchange{}, fmt.Errorf("token_exchange.%s: empty code: %w", provider, ErrCodeExchangeFailed)
	}
	callCtx, cancel := client.callContext(ctx)
	defer cancel()

	token, err := config.Exchange(callCtx, code)
	if err != nil {
		return Exchange{}, fmt.Errorf("token_exchange.%s: %w: %v", provider, ErrCodeExchangeFailed, describeTokenError(err))
	}
	idToken, _ := token.Extra("id_token").(string)
	return Exchange{
		Record:  recordFromOAuth2(token, "", client.clock.Now()),
		IDToken: idToken,
	}, nil
}

// Refresh exchanges the record's refresh token for a new access token.
// The prior refresh token is kept when the provider does not issue a new one.
func (client *TokenClient) Refresh(ctx context.Context, provider Provider, record TokenRecord) (TokenRecord, error) {
	if !record.HasRefreshToken() {
		return TokenRecord{}, fmt.Errorf("token_refresh.%s: %w", provider, ErrRefreshUnavailable)
	}
	config, err := client.registry.Config(provider)
	if err != nil {
		return TokenRecord{}, err
	}
	callCtx, cancel := client.callContext(ctx)
	defer cancel()

	source := config.TokenSource(callCtx, &oauth2.Token{RefreshToken: record.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenRecord{}, fmt.Errorf("token_refresh.%s: %w: %v", provider, ErrRefreshFailed, describeTokenError(err))
	}
	refreshed := recordFromOAuth2(token, record.RefreshToken, client.clock.Now())
	if refreshed.Scope == "" {
		refreshed.Scope = record.Scope
	}
	return refreshed, nil
}

func (client *TokenClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, client.timeout)
	return context.WithValue(callCtx, oauth2.HTTPClient, client.httpClient), cancel
}

// describeTokenError keeps the provider's error code and drops the raw body.
func describeTokenError(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
		if retrieveErr.Response != nil {
			return retrieveErr.Response.Status
		}
	}
	return err.Error()
}
