// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/models"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

const maxResponseBytes = 4 << 20

// APIError is a non-2xx response from the chat API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chat api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// BaseURL is the server root, e.g. http://localhost:3000.
	BaseURL    string
	HTTPClient *http.Client

	BreakerName      string
	FailureThreshold uint32
	OpenTimeout      time.Duration

	// PollLimit caps history reads per second. Zero means unlimited.
	PollLimit rate.Limit
	PollBurst int
}

// RESTClient calls the chat history API through a circuit breaker.
type RESTClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
}

// NewRESTClient creates a client. The breaker opens after FailureThreshold
// consecutive server failures and probes again after OpenTimeout.
func NewRESTClient(cfg RESTConfig) *RESTClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "chat-api"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PollLimit > 0 {
		burst := cfg.PollBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.PollLimit, burst)
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})

	return &RESTClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		cb:      cb,
		limiter: limiter,
	}
}

// isBreakerSuccess counts client errors and caller cancellation as healthy
// calls; only transport failures and 5xx responses trip the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// BreakerState returns the breaker's current state.
func (c *RESTClient) BreakerState() gobreaker.State {
	return c.cb.State()
}

// PostMessage persists a chat message for eventID.
func (c *RESTClient) PostMessage(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error) {
	msg.EventID = eventID
	body, err := json.Marshal(msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("encode message: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, messagesPath(eventID), nil, body)
	if err != nil {
		return models.ChatMessage{}, err
	}

	var out models.ChatMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return models.ChatMessage{}, fmt.Errorf("decode message: %w", err)
	}
	return out, nil
}

// ListMessages returns the event's history using the server's default page.
func (c *RESTClient) ListMessages(ctx context.Context, eventID int64) ([]models.ChatMessage, error) {
	return c.ListMessagesAfter(ctx, eventID, 0, 0)
}

// ListMessagesAfter returns up to limit messages with id greater than
// afterID, oldest first. A zero limit uses the server default.
func (c *RESTClient) ListMessagesAfter(ctx context.Context, eventID, afterID int64, limit int) ([]models.ChatMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if afterID > 0 {
		q.Set("after_id", strconv.FormatInt(afterID, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	data, err := c.do(ctx, http.MethodGet, messagesPath(eventID), q, nil)
	if err != nil {
		return nil, err
	}

	var out []models.ChatMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

func messagesPath(eventID int64) string {
	return "/api/events/" + strconv.FormatInt(eventID, 10) + "/messages"
}

func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	return c.cb.Execute(func() ([]byte, error) {
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, decodeAPIError(resp.StatusCode, data)
		}
		return data, nil
	})
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var env models.APIResponse
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
