// Package backend is the REST client for the Ascend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
)

const maxResponseBytes = 20 << 20

// Endpoint labels used in logs, metrics and errors.
const (
	EndpointSubscription   = "subscription"
	EndpointGetInterview   = "interview.get"
	EndpointStartInterview = "interview.start"
	EndpointTTS            = "tts"
	EndpointMonitor        = "monitor"
	EndpointSubmit         = "submit"
	EndpointSubmitFollowUp = "submit_followup"
	EndpointAnalyze        = "analyze"
	EndpointAssessment     = "assessment"
)

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     auth.Source
	Retry      RetryPolicy
}

// Client calls the backend. TTS, monitor and analysis calls go through the
// retry policy; bootstrap, submit and assessment calls fail on first error.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.Source
	retry   RetryPolicy
	metrics *metrics.Metrics
}

// New creates a backend client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetry()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		tokens:  opts.Tokens,
		retry:   opts.Retry,
		metrics: metrics.DefaultMetrics,
	}
}

// CurrentSubscription fetches the caller's plan.
func (c *Client) CurrentSubscription(ctx context.Context) (*models.Subscription, error) {
	var out models.Subscription
	if err := c.doJSON(ctx, EndpointSubscription, http.MethodGet, "/subscriptions/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInterview resumes an existing interview.
func (c *Client) GetInterview(ctx context.Context, interviewID string) (*models.InterviewSession, error) {
	var out models.InterviewSession
	path := "/interview/" + pathSegment(interviewID)
	if err := c.doJSON(ctx, EndpointGetInterview, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.InterviewID == "" {
		out.InterviewID = interviewID
	}
	return &out, nil
}

// StartInterview creates a new AI interview.
func (c *Client) StartInterview(ctx context.Context, req models.StartRequest) (*models.InterviewSession, error) {
	var out models.InterviewSession
	if err := c.doJSON(ctx, EndpointStartInterview, http.MethodPost, "/interview/ai/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TextToSpeech returns the narration audio for text.
func (c *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := c.retry.Do(ctx, EndpointTTS, func(ctx context.Context) error {
		body, err := json.Marshal(models.TTSRequest{Text: text})
		if err != nil {
			return err
		}
		raw, err := c.send(ctx, EndpointTTS, http.MethodPost, "/interview/ai/text-to-speech", "application/json", body)
		if err != nil {
			return err
		}
		audio = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// Monitor posts a proctoring frame and returns the security status.
func (c *Client) Monitor(ctx context.Context, interviewID string, frame []byte) (*models.SecurityStatus, error) {
	path := fmt.Sprintf("/interview/ai/%s/monitor", pathSegment(interviewID))
	var out models.SecurityStatus
	err := c.retry.Do(ctx, EndpointMonitor, func(ctx context.Context) error {
		body, contentType, err := multipartBody(frame, nil)
		if err != nil {
			return err
		}
		return c.doRaw(ctx, EndpointMonitor, http.MethodPost, path, contentType, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts a main-question answer.
func (c *Client) Submit(ctx context.Context, interviewID string, questionIndex int, answer string, frame []byte) (*models.SubmitReply, error) {
	path := fmt.Sprintf("/interview/ai/%s/submit/%d", pathSegment(interviewID), questionIndex)
	return c.submit(ctx, EndpointSubmit, path, answer, frame)
}

// SubmitFollowUp posts a follow-up answer.
func (c *Client) SubmitFollowUp(ctx context.Context, interviewID string, questionIndex, followUpIndex int, answer string, frame []byte) (*models.SubmitReply, error) {
	path := fmt.Sprintf("/interview/ai/%s/submit-followup/%d/%d", pathSegment(interviewID), questionIndex, followUpIndex)
	return c.submit(ctx, EndpointSubmitFollowUp, path, answer, frame)
}

func (c *Client) submit(ctx context.Context, endpoint, path, answer string, frame []byte) (*models.SubmitReply, error) {
	body, contentType, err := multipartBody(frame, map[string]string{"textResponse": answer})
	if err != nil {
		return nil, err
	}
	var out models.SubmitReply
	if err := c.doRaw(ctx, endpoint, http.MethodPost, path, contentType, body, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("Submit reply contained blank follow-ups")
	}
	return &out, nil
}

// AnalyzeResponse scores an answer independently.
func (c *Client) AnalyzeResponse(ctx context.Context, req models.AnalyzeRequest) (*models.AIAnalysis, error) {
	var out models.AIAnalysis
	err := c.retry.Do(ctx, EndpointAnalyze, func(ctx context.Context) error {
		return c.doJSON(ctx, EndpointAnalyze, http.MethodPost, "/interview/ai/analyze-response", req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Assessment computes the final report.
func (c *Client) Assessment(ctx context.Context, interviewID string) (*models.Assessment, error) {
	path := fmt.Sprintf("/interview/ai/%s/assessment", pathSegment(interviewID))
	var out models.Assessment
	if err := c.doJSON(ctx, EndpointAssessment, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, in, out any) error {
	var body []byte
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", endpoint, err)
		}
		body = b
		contentType = "application/json"
	}
	return c.doRaw(ctx, endpoint, method, path, contentType, body, out)
}

func (c *Client) doRaw(ctx context.Context, endpoint, method, path, contentType string, body []byte, out any) error {
	raw, err := c.send(ctx, endpoint, method, path, contentType, body)
	if err != nil {
		return err
	}
	return decodeEnvelope(endpoint, raw, out)
}

// send performs one request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, endpoint, method, path, contentType string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	latency := time.Since(start)
	c.metrics.RecordBackendRequest(endpoint, statusClass(resp.StatusCode), latency.Seconds())

	log.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Str("path", path).
		Str("requestId", requestID).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Msg("Backend call")

	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: envelopeMessage(raw)}
	}
	return raw, nil
}

func decodeEnvelope(endpoint string, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	if !env.Success && len(env.Data) == 0 && env.Message != "" {
		return &APIError{Endpoint: endpoint, Status: http.StatusOK, Message: env.Message}
	}
	data := []byte(env.Data)
	if len(data) == 0 || string(data) == "null" {
		// Some routes reply with the payload unwrapped.
		data = raw
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", endpoint, err)
	}
	return nil
}

func envelopeMessage(raw []byte) string {
	var env models.Envelope
	if json.Unmarshal(raw, &env) == nil {
		return env.Message
	}
	return ""
}

func multipartBody(frame []byte, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if len(frame) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(frame); err != nil {
			return nil, "", err
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func pathSegment(s string) string {
	return url.PathEscape(strings.TrimSpace(s))
}
