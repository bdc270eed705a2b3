package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/babbling-brook/streambed/shared/api"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"golang.org/x/time/rate"
)

const actionPath = "/action"

// APIClient struct handles all communication with the domus proxy. Every request is
// an api.Envelope naming one action; the proxy answers with an api.Reply.
type APIClient struct {
	BaseURL    string
	HttpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a new client for interacting with the domus.
func New(baseURL string, timeout time.Duration, perSecond float64, burst int) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type tokenKey struct{}

// WithAccessToken attaches the visitor's access token so that domus calls made on
// their behalf carry it.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// do is the single, unified helper for domus requests. out may be nil when the
// action has no reply payload.
func (c *APIClient) do(ctx context.Context, action api.Action, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	body, err := json.Marshal(api.Envelope{Action: action, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+actionPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create domus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := accessToken(ctx); token != "" {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("domus unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &internal_errors.ErrorWithStatusCode{
			Message:    fmt.Sprintf("%s failed: %s", action, strings.TrimSpace(string(bodyBytes))),
			StatusCode: resp.StatusCode,
		}
	}

	var reply api.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("cannot decode %s reply: %w", action, err)
	}
	if !reply.Success {
		return &internal_errors.ErrorWithStatusCode{
			Message:    fmt.Sprintf("%s rejected: %s", action, reply.Error),
			StatusCode: http.StatusBadGateway,
		}
	}
	if out == nil || len(reply.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Data, out); err != nil {
		return fmt.Errorf("cannot decode %s data: %w", action, err)
	}
	return nil
}
