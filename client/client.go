package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siherrmann/securerag/api"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// Client talks to a running securerag server with the same contract as an ordinary caller.
// The principal's external id is sent as the X-User-Email identity.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient uses one with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Search(ctx context.Context, principal model.Principal, req model.SearchRequest) (*model.SearchResponse, error) {
	resp := &model.SearchResponse{}
	if err := c.post(ctx, principal, "/search", req, resp); err != nil {
		return nil, helper.NewError("search", err)
	}
	return resp, nil
}

func (c *Client) Ingest(ctx context.Context, principal model.Principal, req model.IngestRequest) (*model.IngestResult, error) {
	result := &model.IngestResult{}
	if err := c.post(ctx, principal, "/ingest", req, result); err != nil {
		return nil, helper.NewError("ingest", err)
	}
	return result, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (*model.Leaderboard, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/leaderboard?limit=%d", c.baseURL, limit), nil)
	if err != nil {
		return nil, helper.NewError("leaderboard request", err)
	}
	board := &model.Leaderboard{}
	if err := c.do(httpReq, board); err != nil {
		return nil, helper.NewError("leaderboard", err)
	}
	return board, nil
}

func (c *Client) post(ctx context.Context, principal model.Principal, path string, body any, out any) error {
	if principal.ExternalID == "" {
		return model.ErrNotAuthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(api.HeaderUserEmail, principal.ExternalID)

	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var env api.ErrorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", model.ErrNotAuthenticated, msg)
	case env.Error.Code == api.CodeUnsupported:
		return fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, msg)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	default:
		return fmt.Errorf("%w: server returned status %d: %s", model.ErrProviderFailure, status, msg)
	}
}
