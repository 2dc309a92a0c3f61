package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Judge0 status ids.
const (
	StatusInQueue          = 1
	StatusProcessing       = 2
	StatusAccepted         = 3
	StatusWrongAnswer      = 4
	StatusTimeLimit        = 5
	StatusCompilationError = 6
	StatusRuntimeSIGSEGV   = 7
	StatusRuntimeSIGXFSZ   = 8
	StatusRuntimeSIGFPE    = 9
	StatusRuntimeSIGABRT   = 10
	StatusRuntimeNZEC      = 11
	StatusRuntimeOther     = 12
	StatusInternalError    = 13
	StatusExecFormatError  = 14
)

const defaultAuthHeader = "X-Auth-Token"

// Config configures the Judge0 HTTP client.
type Config struct {
	BaseURL    string        `yaml:"baseUrl"`
	AuthToken  string        `yaml:"authToken"`
	AuthHeader string        `yaml:"authHeader"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Client talks to a Judge0-compatible execution service.
type Client struct {
	baseURL    string
	authToken  string
	authHeader string
	http       *http.Client
}

// SubmitRequest is one program run against one stdin.
type SubmitRequest struct {
	SourceCode string
	LanguageID int
	Stdin      string
}

// Status is the judge's verdict descriptor.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is a decoded submission lookup.
type Result struct {
	Token         string
	Status        Status
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	// TimeMs is CPU time in milliseconds, 0 when unavailable.
	TimeMs float64
	// MemoryKB is peak memory, 0 when unavailable.
	MemoryKB float64
}

// Pending reports whether the judge is still working on the submission.
func (r *Result) Pending() bool {
	return r.Status.ID == StatusInQueue || r.Status.ID == StatusProcessing
}

// HTTPError is a non-2xx answer from the judge.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("judge returned %d: %s", e.StatusCode, e.Body)
}

// New creates a client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("judge base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge base url: %w", err)
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = defaultAuthHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    base,
		authToken:  cfg.AuthToken,
		authHeader: cfg.AuthHeader,
		http:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type createBody struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type createReply struct {
	Token string `json:"token"`
}

// CreateSubmission queues a run and returns its token without waiting for the verdict.
func (c *Client) CreateSubmission(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(createBody{
		SourceCode: base64.StdEncoding.EncodeToString([]byte(req.SourceCode)),
		LanguageID: req.LanguageID,
		Stdin:      base64.StdEncoding.EncodeToString([]byte(req.Stdin)),
	})
	if err != nil {
		return "", fmt.Errorf("encode submission failed: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/submissions?base64_encoded=true&wait=false", body)
	if err != nil {
		return "", err
	}
	var reply createReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("decode submission token failed: %w", err)
	}
	if reply.Token == "" {
		return "", errors.New("judge returned an empty token")
	}
	return reply.Token, nil
}

type resultReply struct {
	Token         string    `json:"token"`
	Status        Status    `json:"status"`
	Stdout        *string   `json:"stdout"`
	Stderr        *string   `json:"stderr"`
	CompileOutput *string   `json:"compile_output"`
	Message       *string   `json:"message"`
	Time          flexFloat `json:"time"`
	Memory        flexFloat `json:"memory"`
}

// GetSubmission fetches the current state of a run.
func (c *Client) GetSubmission(ctx context.Context, token string) (*Result, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}
	data, err := c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(token)+"?base64_encoded=true", nil)
	if err != nil {
		return nil, err
	}
	var reply resultReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decode submission result failed: %w", err)
	}
	return &Result{
		Token:         token,
		Status:        reply.Status,
		Stdout:        decodeField(reply.Stdout),
		Stderr:        decodeField(reply.Stderr),
		CompileOutput: decodeField(reply.CompileOutput),
		Message:       decodeField(reply.Message),
		TimeMs:        float64(reply.Time) * 1000,
		MemoryKB:      float64(reply.Memory),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set(c.authHeader, c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// decodeField undoes the base64 transport encoding; Judge0 wraps lines, so
// embedded newlines are stripped first. Undecodable values are returned as-is.
// Program output is arbitrary bytes; invalid UTF-8 is replaced.
func decodeField(v *string) string {
	if v == nil {
		return ""
	}
	compact := strings.NewReplacer("\n", "", "\r", "").Replace(*v)
	out, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return strings.ToValidUTF8(*v, "\uFFFD")
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
