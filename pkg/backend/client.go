package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	EndpointHistory        = "history"
	EndpointAsk            = "ask"
	EndpointFeedback       = "feedback"
	EndpointDashboard      = "dashboard"
	EndpointLogin          = "login"
	EndpointRegister       = "register"
	EndpointForgotPassword = "forgot-password"
)

const DefaultDashboardPageSize = 20

// Client talks to the document QA backend over JSON/HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
	metrics    *Metrics
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("backend url %q must be absolute", baseURL)
	}

	ret := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// History returns the persisted transcript of a conversation. A payload that
// is not a list of entries is treated as an empty history.
func (c *Client) History(ctx context.Context, conversationID string, clientID string) ([]transcript.Entry, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	q.Set("client_id", clientID)

	var raw json.RawMessage
	if err := c.do(ctx, EndpointHistory, http.MethodGet, "/api/history", q, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		log.Debug().Str("conversation", conversationID).Msg("history payload is not a list, treating as empty")
		return nil, nil
	}
	items := []json.RawMessage{}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, errors.Wrap(err, "could not decode history")
	}

	entries := make([]transcript.Entry, 0, len(items))
	for i, item := range items {
		e, ok := decodeHistoryEntry(item)
		if !ok {
			log.Warn().Str("conversation", conversationID).Int("index", i).Msg("skipping malformed history entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// decodeHistoryEntry decodes one history entry. An entry whose references are
// malformed keeps its role and content and loses its references.
func decodeHistoryEntry(item json.RawMessage) (transcript.Entry, bool) {
	e := transcript.Entry{}
	err := json.Unmarshal(item, &e)
	if err == nil {
		return e, true
	}

	var partial struct {
		Role    transcript.Role `json:"role"`
		Content string          `json:"content"`
	}
	if perr := json.Unmarshal(item, &partial); perr != nil {
		return transcript.Entry{}, false
	}
	log.Warn().Err(err).Str("role", string(partial.Role)).Msg("dropping malformed references of history entry")
	return transcript.Entry{Role: partial.Role, Content: partial.Content}, true
}

func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	resp := &AskResponse{}
	if err := c.do(ctx, EndpointAsk, http.MethodPost, "/api/ask", nil, req, resp); err != nil {
		return nil, err
	}
	if resp.References == nil {
		resp.References = []transcript.Reference{}
	}
	return resp, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) error {
	if !req.FeedbackType.IsValid() {
		return errors.Wrapf(ErrMissingField, "invalid feedback type %q", req.FeedbackType)
	}
	return c.do(ctx, EndpointFeedback, http.MethodPost, "/api/feedback/submit", nil, req, nil)
}

func (c *Client) FeedbackDashboard(ctx context.Context, query DashboardQuery) (*Dashboard, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = DefaultDashboardPageSize
	}
	q := url.Values{}
	q.Set("client_id", query.ClientID)
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("page_size", strconv.Itoa(query.PageSize))
	if query.FeedbackType != "" {
		q.Set("feedback_type", string(query.FeedbackType))
	}

	ret := &Dashboard{}
	if err := c.do(ctx, EndpointDashboard, http.MethodGet, "/api/feedback/dashboard", q, nil, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.Wrap(ErrMissingField, "username and password are required")
	}
	resp := &LoginResponse{}
	if err := c.do(ctx, EndpointLogin, http.MethodPost, "/api/login", nil, req, resp); err != nil {
		return nil, err
	}
	if (resp.StatusCode != 0 && resp.StatusCode != http.StatusOK) || resp.Token == "" {
		return nil, errors.Wrapf(ErrLoginFailed, "status %d", resp.StatusCode)
	}
	return resp, nil
}

// Register creates an account. Mismatching passwords are rejected before any
// request is sent.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if req.UserID == "" || req.Email == "" || req.Password == "" {
		return errors.Wrap(ErrMissingField, "userid, email and password are required")
	}
	if req.Password != req.Confirm {
		return ErrPasswordMismatch
	}
	return c.do(ctx, EndpointRegister, http.MethodPost, "/api/register", nil, req, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.Wrap(ErrMissingField, "email is required")
	}
	return c.do(ctx, EndpointForgotPassword, http.MethodPost, "/api/forgot-password", nil, ForgotPasswordRequest{Email: email}, nil)
}

func (c *Client) do(
	ctx context.Context,
	endpoint string,
	method string,
	path string,
	query url.Values,
	body interface{},
	out interface{},
) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.observe(endpoint, outcome, time.Since(start).Seconds())
	}()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Debug().Str("method", method).Str("url", u.String()).Msg("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", endpoint)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "status_" + strconv.Itoa(resp.StatusCode)
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(resp.StatusCode, b),
		}
	}

	if out != nil && len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			outcome = "malformed"
			return errors.Wrapf(err, "could not decode %s response", endpoint)
		}
	}
	outcome = "ok"
	return nil
}

// parseDetail extracts the human readable reason of a failed response. The
// detail field may be a string or structured validation errors.
func parseDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return http.StatusText(status)
}
