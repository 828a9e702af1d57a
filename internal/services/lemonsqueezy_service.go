package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	defaultLemonSqueezyBaseURL = "https://api.lemonsqueezy.com"
	defaultMaxRetries          = 3
	defaultRetryDelay          = time.Second
	jsonAPIContentType         = "application/vnd.api+json"
)

// LemonSqueezyService is the billing provider client. Transport failures are
// retried with a linear backoff; any non-2xx answer fails immediately.
type LemonSqueezyService interface {
	UpdateSubscriptionItem(ctx context.Context, itemID string, quantity int) (*SubscriptionItem, error)
	GetSubscriptionItem(ctx context.Context, itemID string) (*SubscriptionItem, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CreateUsageRecord(ctx context.Context, itemID string, quantity int) (*UsageRecord, error)
}

type LemonSqueezyOptions struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      clockwork.Clock
}

type SubscriptionItem struct {
	ID             string `json:"-"`
	SubscriptionID int    `json:"subscription_id"`
	PriceID        int    `json:"price_id"`
	Quantity       int    `json:"quantity"`
	IsUsageBased   bool   `json:"is_usage_based"`
}

type ProviderSubscription struct {
	ID                    string            `json:"-"`
	StoreID               int               `json:"store_id"`
	CustomerID            int               `json:"customer_id"`
	ProductID             int               `json:"product_id"`
	VariantID             int               `json:"variant_id"`
	Status                string            `json:"status"`
	Cancelled             bool              `json:"cancelled"`
	RenewsAt              *time.Time        `json:"renews_at"`
	EndsAt                *time.Time        `json:"ends_at"`
	TrialEndsAt           *time.Time        `json:"trial_ends_at"`
	FirstSubscriptionItem *SubscriptionItem `json:"first_subscription_item"`
}

type UsageRecord struct {
	ID                 string `json:"-"`
	SubscriptionItemID int    `json:"subscription_item_id"`
	Quantity           int    `json:"quantity"`
	Action             string `json:"action"`
}

type jsonAPIResource struct {
	Type          string                 `json:"type"`
	ID            string                 `json:"id,omitempty"`
	Attributes    interface{}            `json:"attributes,omitempty"`
	Relationships map[string]interface{} `json:"relationships,omitempty"`
}

type jsonAPIRequest struct {
	Data jsonAPIResource `json:"data"`
}

type jsonAPIResponse struct {
	Data struct {
		Type       string          `json:"type"`
		ID         string          `json:"id"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

type jsonAPIErrors struct {
	Errors []struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	} `json:"errors"`
}

type lemonSqueezyService struct {
	apiKey     string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	clock      clockwork.Clock
}

// NewLemonSqueezyService returns a ConfigurationError when no API key is set.
func NewLemonSqueezyService(opts LemonSqueezyOptions) (LemonSqueezyService, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &common.ConfigurationError{Msg: "LEMONSQUEEZY_API_KEY is not set"}
	}

	s := &lemonSqueezyService{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		http:       opts.HTTPClient,
		clock:      opts.Clock,
	}
	if s.baseURL == "" {
		s.baseURL = defaultLemonSqueezyBaseURL
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		s.http = &http.Client{Timeout: timeout}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s, nil
}

func (s *lemonSqueezyService) UpdateSubscriptionItem(ctx context.Context, itemID string, quantity int) (*SubscriptionItem, error) {
	body := jsonAPIRequest{Data: jsonAPIResource{
		Type: "subscription-items",
		ID:   itemID,
		Attributes: map[string]interface{}{
			"quantity":           quantity,
			"disable_prorations": true,
		},
	}}

	item := &SubscriptionItem{}
	id, err := s.makeRequest(ctx, http.MethodPatch, "/v1/subscription-items/"+itemID, body, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	return item, nil
}

func (s *lemonSqueezyService) GetSubscriptionItem(ctx context.Context, itemID string) (*SubscriptionItem, error) {
	item := &SubscriptionItem{}
	id, err := s.makeRequest(ctx, http.MethodGet, "/v1/subscription-items/"+itemID, nil, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	return item, nil
}

func (s *lemonSqueezyService) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	subscription := &ProviderSubscription{}
	id, err := s.makeRequest(ctx, http.MethodGet, "/v1/subscriptions/"+subscriptionID, nil, subscription)
	if err != nil {
		return nil, err
	}
	subscription.ID = id
	return subscription, nil
}

func (s *lemonSqueezyService) CancelSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	subscription := &ProviderSubscription{}
	id, err := s.makeRequest(ctx, http.MethodDelete, "/v1/subscriptions/"+subscriptionID, nil, subscription)
	if err != nil {
		return nil, err
	}
	subscription.ID = id
	return subscription, nil
}

// CreateUsageRecord sets the reported usage of a usage-based item to quantity.
func (s *lemonSqueezyService) CreateUsageRecord(ctx context.Context, itemID string, quantity int) (*UsageRecord, error) {
	body := jsonAPIRequest{Data: jsonAPIResource{
		Type: "usage-records",
		Attributes: map[string]interface{}{
			"quantity": quantity,
			"action":   "set",
		},
		Relationships: map[string]interface{}{
			"subscription-item": map[string]interface{}{
				"data": map[string]string{"type": "subscription-items", "id": itemID},
			},
		},
	}}

	record := &UsageRecord{}
	id, err := s.makeRequest(ctx, http.MethodPost, "/v1/usage-records", body, record)
	if err != nil {
		return nil, err
	}
	record.ID = id
	return record, nil
}

// makeRequest performs the call and decodes data.attributes into out,
// returning data.id.
func (s *lemonSqueezyService) makeRequest(ctx context.Context, method, path string, body interface{}, out interface{}) (string, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	operation := operationName(path)
	start := s.clock.Now()
	logger := log.With().Str("method", method).Str("path", path).Logger()

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		resp, err := s.do(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordProviderRequest(method, operation, "cancelled", s.clock.Since(start))
				return "", ctx.Err()
			}
			lastErr = err
			if attempt == s.maxRetries {
				break
			}

			delay := s.retryDelay * time.Duration(attempt)
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("LemonSqueezy request failed, retrying")
			metrics.RecordProviderRetry(method, operation)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-s.clock.After(delay):
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("failed to read LemonSqueezy response: %w", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &common.ProviderAPIError{
				Method:     method,
				Path:       path,
				StatusCode: resp.StatusCode,
				Detail:     errorDetail(resp.StatusCode, respBody),
			}
			logger.Error().Int("status", resp.StatusCode).Int("attempt", attempt).Str("detail", apiErr.Detail).
				Dur("duration", s.clock.Since(start)).Msg("LemonSqueezy request rejected")
			metrics.RecordProviderRequest(method, operation, "api_error", s.clock.Since(start))
			return "", apiErr
		}

		logger.Info().Int("status", resp.StatusCode).Int("attempt", attempt).
			Dur("duration", s.clock.Since(start)).Msg("LemonSqueezy request succeeded")
		metrics.RecordProviderRequest(method, operation, "success", s.clock.Since(start))

		if out == nil || len(respBody) == 0 {
			return "", nil
		}
		var envelope jsonAPIResponse
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return "", fmt.Errorf("failed to decode LemonSqueezy response: %w", err)
		}
		if len(envelope.Data.Attributes) > 0 {
			if err := json.Unmarshal(envelope.Data.Attributes, out); err != nil {
				return "", fmt.Errorf("failed to decode LemonSqueezy attributes: %w", err)
			}
		}
		return envelope.Data.ID, nil
	}

	logger.Error().Err(lastErr).Int("attempts", s.maxRetries).Dur("duration", s.clock.Since(start)).
		Msg("LemonSqueezy request exhausted retries")
	metrics.RecordProviderRequest(method, operation, "transport_error", s.clock.Since(start))
	return "", &common.MaxRetriesExceededError{Method: method, Path: path, Attempts: s.maxRetries, Err: lastErr}
}

func (s *lemonSqueezyService) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", jsonAPIContentType)
	if payload != nil {
		req.Header.Set("Content-Type", jsonAPIContentType)
	}
	return s.http.Do(req)
}

func errorDetail(statusCode int, body []byte) string {
	var apiErrors jsonAPIErrors
	if err := json.Unmarshal(body, &apiErrors); err == nil && len(apiErrors.Errors) > 0 {
		if detail := apiErrors.Errors[0].Detail; detail != "" {
			return detail
		}
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return "Unknown LemonSqueezy API error"
}

func operationName(path string) string {
	trimmed := strings.TrimPrefix(path, "/v1/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// IsProviderError reports whether err came from the billing provider, either
// as a rejection or as exhausted transport retries.
func IsProviderError(err error) bool {
	var apiErr *common.ProviderAPIError
	var retryErr *common.MaxRetriesExceededError
	return errors.As(err, &apiErr) || errors.As(err, &retryErr)
}
