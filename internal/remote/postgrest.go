package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	restPathPrefix   = "/rest/v1/"
	tokenPath        = "/auth/v1/token"
	defaultTimeout   = 8 * time.Second
	maxErrorBodySize = 64 << 10
)

var (
	errMissingBaseURL = errors.New("remote: base url is required")
	errMissingAPIKey  = errors.New("remote: api key is required")
	errMissingCount   = errors.New("remote: response did not carry an exact count")
)

// PostgRESTConfig configures the HTTP client for a hosted PostgREST project.
type PostgRESTConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// PostgRESTClient implements Service against the PostgREST REST dialect and the
// password grant of the project's auth endpoint.
type PostgRESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// AuthUser is the identity returned by a successful password sign-in.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func NewPostgRESTClient(cfg PostgRESTConfig) (*PostgRESTClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgRESTClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *PostgRESTClient) Insert(ctx context.Context, table string, row Row) (Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return Row{}, fmt.Errorf("remote: encode row: %w", err)
	}
	params := url.Values{}
	params.Set("select", "*")

	response, err := c.do(ctx, http.MethodPost, restPathPrefix+table, params, bytes.NewReader(body), map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return Row{}, err
	}
	defer response.Body.Close()

	var rows []Row
	if err := json.NewDecoder(response.Body).Decode(&rows); err != nil {
		return Row{}, fmt.Errorf("remote: decode inserted row: %w", err)
	}
	if len(rows) == 0 {
		return row, nil
	}
	return rows[0], nil
}

func (c *PostgRESTClient) Select(ctx context.Context, table string, query Query) ([]Row, error) {
	params, err := encodeQuery(query)
	if err != nil {
		return nil, err
	}
	response, err := c.do(ctx, http.MethodGet, restPathPrefix+table, params, nil, nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	var rows []Row
	if err := json.NewDecoder(response.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("remote: decode rows: %w", err)
	}
	return rows, nil
}

func (c *PostgRESTClient) Count(ctx context.Context, table string, filters []Filter) (int64, error) {
	params, err := encodeQuery(Query{Columns: []string{"id"}, Filters: filters})
	if err != nil {
		return 0, err
	}
	response, err := c.do(ctx, http.MethodHead, restPathPrefix+table, params, nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()
	return parseContentRangeTotal(response.Header.Get("Content-Range"))
}

// Ping reports the store reachable when it answers with anything below 500.
func (c *PostgRESTClient) Ping(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+restPathPrefix, nil)
	if err != nil {
		return err
	}
	c.authorize(request)
	response, err := c.httpClient.Do(request)
	if err != nil {
		return &Error{Message: "ping failed", Err: err}
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxErrorBodySize))
	if response.StatusCode >= http.StatusInternalServerError {
		return &Error{Status: response.StatusCode, Message: http.StatusText(response.StatusCode)}
	}
	return nil
}

// SignInWithPassword exchanges admin credentials for the authenticated user.
func (c *PostgRESTClient) SignInWithPassword(ctx context.Context, email, password string) (AuthUser, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return AuthUser{}, err
	}
	params := url.Values{}
	params.Set("grant_type", "password")

	response, err := c.do(ctx, http.MethodPost, tokenPath, params, bytes.NewReader(body), nil)
	if err != nil {
		return AuthUser{}, err
	}
	defer response.Body.Close()

	var payload struct {
		AccessToken string   `json:"access_token"`
		User        AuthUser `json:"user"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return AuthUser{}, fmt.Errorf("remote: decode sign-in response: %w", err)
	}
	if payload.AccessToken == "" || payload.User.Email == "" {
		return AuthUser{}, &Error{Status: http.StatusUnauthorized, Code: "invalid_grant", Message: "sign-in returned no session"}
	}
	return payload.User, nil
}

func (c *PostgRESTClient) do(ctx context.Context, method, path string, params url.Values, body io.Reader, headers map[string]string) (*http.Response, error) {
	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.authorize(request)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("remote request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, &Error{Message: "request failed", Err: err}
	}
	if response.StatusCode >= http.StatusBadRequest {
		defer response.Body.Close()
		return nil, decodeError(response)
	}
	return response, nil
}

func (c *PostgRESTClient) authorize(request *http.Request) {
	request.Header.Set("apikey", c.apiKey)
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Accept", "application/json")
}

type errorPayload struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(response *http.Response) error {
	remoteErr := &Error{Status: response.StatusCode, Message: http.StatusText(response.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return remoteErr
	}

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		remoteErr.Message = strings.TrimSpace(string(raw))
		return remoteErr
	}

	remoteErr.Code = firstNonEmpty(rawCode(payload.Code), payload.ErrorCode, payload.Error)
	remoteErr.Message = firstNonEmpty(payload.Message, payload.Msg, payload.ErrorDescription, remoteErr.Message)
	remoteErr.Details = payload.Details
	remoteErr.Hint = payload.Hint
	return remoteErr
}

// rawCode accepts both string codes (PostgREST) and numeric codes (auth server).
func rawCode(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	return string(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func encodeQuery(query Query) (url.Values, error) {
	params := url.Values{}
	if len(query.Columns) == 0 {
		params.Set("select", "*")
	} else {
		for _, column := range query.Columns {
			if err := validateColumn(column); err != nil {
				return nil, err
			}
		}
		params.Set("select", strings.Join(query.Columns, ","))
	}
	for _, filter := range query.Filters {
		if err := validateColumn(filter.Column); err != nil {
			return nil, err
		}
		params.Add(filter.Column, string(filter.Op)+"."+filter.Value)
	}
	if len(query.Order) > 0 {
		parts := make([]string, 0, len(query.Order))
		for _, order := range query.Order {
			if err := validateColumn(order.Column); err != nil {
				return nil, err
			}
			direction := "asc"
			if order.Descending {
				direction = "desc"
			}
			parts = append(parts, order.Column+"."+direction)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		params.Set("offset", strconv.Itoa(query.Offset))
	}
	return params, nil
}

// parseContentRangeTotal reads the total from "0-24/3573" or "*/0".
func parseContentRangeTotal(header string) (int64, error) {
	slash := strings.LastIndex(header, "/")
	if slash < 0 {
		return 0, errMissingCount
	}
	total := strings.TrimSpace(header[slash+1:])
	if total == "" || total == "*" {
		return 0, errMissingCount
	}
	value, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote: invalid content-range %q: %w", header, err)
	}
	return value, nil
}
