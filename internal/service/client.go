package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

const (
	submitPath  = "refresh"
	resultsPath = "results"

	maxBodySize     = 10 << 20
	maxErrorExcerpt = 512
)

//go:embed result.schema.json
var resultSchemaSource string

var resultSchema = jsonschema.MustCompileString("result.schema.json", resultSchemaSource)

// JobClient talks to the remote job service: POST /refresh starts a job,
// GET /results/{id} reports its status.
type JobClient struct {
	baseURL *url.URL
	filter  string
	client  *http.Client
}

func NewJobClient(serverURL string) (*JobClient, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	if (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return nil, errors.New("please define the server url with a http(s) scheme, e.g. `http://localhost:5001`")
	}
	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return nil, errors.New("server url must not contain a query or a fragment")
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")
	parsedURL.RawPath = ""

	c := &JobClient{
		baseURL: parsedURL,
		client:  &http.Client{Timeout: model.DefaultTimeout},
	}
	return c, nil
}

// WithTimeout limits every single request. Zero disables the limit.
func (c *JobClient) WithTimeout(d time.Duration) *JobClient {
	c.client.Timeout = d
	return c
}

// WithFilter sets the opaque filter value forwarded on every submission.
func (c *JobClient) WithFilter(filter string) *JobClient {
	c.filter = filter
	return c
}

// Submit asks the service to start a new job and returns its handle.
func (c *JobClient) Submit(ctx context.Context) (model.JobHandle, error) {
	u := c.baseURL.JoinPath(submitPath)
	if c.filter != "" {
		q := u.Query()
		q.Set("filter", c.filter)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d, body: %s", model.ErrUnexpectedStatus, resp.StatusCode, excerpt(body))
	}

	job, err := decodeJobHandle(body)
	if err != nil {
		return "", err
	}
	slog.DebugContext(ctx, "job submitted", "job", job.String())
	return job, nil
}

// Status checks the job once. 202 means pending, 200 carries the result.
func (c *JobClient) Status(ctx context.Context, job model.JobHandle) (model.PollStatus, model.Result, error) {
	u := c.baseURL.JoinPath(resultsPath, url.PathEscape(job.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return c.decodeStatusResponse(resp)
}

func (c *JobClient) decodeStatusResponse(resp *http.Response) (model.PollStatus, model.Result, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", nil, fmt.Errorf("reading status response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return model.StatusPending, nil, nil
	case http.StatusOK:
		result, err := decodeResult(body)
		if err != nil {
			return "", nil, err
		}
		return model.StatusComplete, result, nil
	}
	return "", nil, fmt.Errorf("%w: %d, body: %s", model.ErrUnexpectedStatus, resp.StatusCode, excerpt(body))
}

// decodeJobHandle accepts a JSON string, an object with an id field or
// plain text.
func decodeJobHandle(body []byte) (model.JobHandle, error) {
	body = bytes.TrimSpace(body)
	var id string
	switch {
	case len(body) > 0 && body[0] == '"':
		if err := json.Unmarshal(body, &id); err != nil {
			return "", fmt.Errorf("decoding job id: %w", err)
		}
	case len(body) > 0 && body[0] == '{':
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", fmt.Errorf("decoding job id: %w", err)
		}
		id = obj.ID
	default:
		id = string(body)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", model.ErrEmptyJobHandle
	}
	return model.JobHandle(id), nil
}

func decodeResult(body []byte) (model.Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidPayload, err)
	}
	if err := resultSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidPayload, err)
	}
	var result model.Result
	if err := json.Unmarshal(body, &result); err != nil {
		if errors.Is(err, model.ErrInvalidPayload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidPayload, err)
	}
	if result == nil {
		result = model.Result{}
	}
	return result, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorExcerpt {
		return s[:maxErrorExcerpt] + "..."
	}
	return s
}
