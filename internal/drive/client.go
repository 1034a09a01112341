package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// APIBase is the Drive v3 REST root every relative path resolves against.
const APIBase = "https://www.googleapis.com/drive/v3"

// uploadBase is the media-upload counterpart of APIBase.
const uploadBase = "https://www.googleapis.com/upload/drive/v3"

// userInfoURL serves the OAuth2 profile claims (name, picture).
const userInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

const userAgent = "google-drive-endpoint/0.1"

// Call describes one proxied request. Params become query parameters;
// Body (for POST/PUT/PATCH) is marshaled as the JSON request body.
type Call struct {
	Token  string
	Method string
	URL    string
	Params map[string]any
	Body   any
}

// CallError is the structured error half of a Result.
type CallError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
}

// Result is the uniform outcome of a proxied call: a success payload
// mirroring the upstream JSON, or a structured error. Exactly one of
// Data and Error is set.
type Result struct {
	Data  map[string]any
	Error *CallError
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}

// Payload renders the result as the JSON shape handed back to the
// platform: the data itself, or {"error": {...}}.
func (r Result) Payload() map[string]any {
	if r.Error != nil {
		return map[string]any{"error": r.Error}
	}

	if r.Data == nil {
		return map[string]any{}
	}

	return r.Data
}

// Client is a stateless HTTP proxy for the Drive API. Credentials are
// passed per call, never held as client state, so one Client serves all
// user sessions concurrently.
type Client struct {
	apiBase     string
	uploadBase  string
	userInfoURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Drive proxy client. An empty baseURL selects the
// production Drive v3 endpoints; tests point it at an httptest server.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		apiBase:     APIBase,
		uploadBase:  uploadBase,
		userInfoURL: userInfoURL,
		httpClient:  httpClient,
		logger:      logger,
	}

	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/")
		c.apiBase = base
		c.uploadBase = base + "/upload"
		c.userInfoURL = base + "/userinfo"
	}

	return c
}

// BuildURL resolves a caller-supplied path against the API base.
// Absolute URLs pass through unchanged; a leading slash appends to the
// base; any other segment is joined with a separating slash; an empty
// path yields the base itself.
func (c *Client) BuildURL(path string) string {
	switch {
	case path == "":
		return c.apiBase
	case strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://"):
		return path
	case strings.HasPrefix(path, "/"):
		return c.apiBase + path
	default:
		return c.apiBase + "/" + path
	}
}

// Execute performs one proxied call and decodes the JSON response with
// all date-time fields normalized. Upstream HTTP failures come back as
// *APIError; transport and serialization failures as wrapped errors.
func (c *Client) Execute(ctx context.Context, call Call) (map[string]any, error) {
	var body io.Reader

	if call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("drive: encoding request body: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	resp, err := c.do(ctx, call.Method, withParams(call.URL, call.Params), call.Token, body, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := newAPIError(resp.StatusCode, raw)
		c.logger.Info("drive request failed",
			slog.String("method", call.Method),
			slog.String("url", call.URL),
			slog.Int("status", resp.StatusCode),
		)

		return nil, apiErr
	}

	return decodePayload(raw)
}

// do builds and sends a single authorized request. callers close the body.
func (c *Client) do(ctx context.Context, method, rawURL, token string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive: %s %s: %w", method, rawURL, err)
	}

	return resp, nil
}

// withParams appends query parameters to rawURL. Keys are applied in
// sorted order so the resulting URL is deterministic; scalar, boolean,
// and numeric values are rendered in their query form.
func withParams(rawURL string, params map[string]any) string {
	if len(params) == 0 {
		return rawURL
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Add(k, paramValue(params[k]))
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}

	return rawURL + sep + values.Encode()
}

func paramValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers decode as float64; render integers without a point.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}

		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// decodePayload parses a success body into a map with normalized
// timestamps. Empty bodies (204 responses) decode to an empty map.
func decodePayload(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("drive: decoding response body: %w", err)
	}

	decoded = NormalizeTimestamps(decoded)

	if m, ok := decoded.(map[string]any); ok {
		return m, nil
	}

	// Drive responses are objects; wrap the rare bare value for a
	// uniform shape.
	return map[string]any{"result": decoded}, nil
}
