// Package filetrans drives Alibaba Cloud's asynchronous recording-file
// recognition: submit a signed URL, then poll until the job settles.
package filetrans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"prdforge/internal/logging"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun"
	"prdforge/internal/transcript"
)

const (
	apiVersion = "2018-08-17"
	product    = "nls-filetrans"

	// DefaultRegion is used when no region is configured.
	DefaultRegion = "cn-hangzhou"

	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Status is the normalized job state.
type Status string

const (
	StatusQueuing Status = "QUEUING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Task is the state of one recognition job.
type Task struct {
	ID       string               `json:"taskId"`
	Status   Status               `json:"status"`
	Text     string               `json:"result,omitempty"`
	Segments []transcript.Segment `json:"segments,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Client submits and polls recognition jobs.
type Client struct {
	caller aliyun.Caller
	appKey string
	region string
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for poll deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleeper overrides the wait between polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New constructs a client for region.
func New(caller aliyun.Caller, appKey, region string, opts ...Option) *Client {
	region = strings.TrimPrefix(strings.TrimSpace(region), "oss-")
	if region == "" {
		region = DefaultRegion
	}
	c := &Client{
		caller: caller,
		appKey: strings.TrimSpace(appKey),
		region: region,
		logger: logging.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "filetrans")
	return c
}

// Region returns the API region.
func (c *Client) Region() string { return c.region }

func (c *Client) domain() string {
	return fmt.Sprintf("filetrans.%s.aliyuncs.com", c.region)
}

type taskSpec struct {
	AppKey                         string `json:"appkey"`
	FileLink                       string `json:"file_link"`
	Version                        string `json:"version"`
	EnableWords                    bool   `json:"enable_words"`
	EnablePunctuationPrediction    bool   `json:"enable_punctuation_prediction"`
	EnableInverseTextNormalization bool   `json:"enable_inverse_text_normalization"`
	EnableDiarization              bool   `json:"enable_diarization"`
	SpeakerCount                   int    `json:"speaker_count"`
	EnableSemanticSentence         bool   `json:"enable_semantic_sentence_detection"`
}

type submitResponse struct {
	TaskID     string `json:"TaskId"`
	StatusText string `json:"StatusText"`
	StatusCode int    `json:"StatusCode"`
	Message    string `json:"Message"`
}

// Submit creates a job for fileURL and returns its task id.
func (c *Client) Submit(ctx context.Context, fileURL string) (string, error) {
	if c.appKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "filetrans", "submit", "app key required (ALIYUN_ASR_APP_KEY)", nil)
	}
	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" {
		return "", services.Wrap(services.ErrValidation, "filetrans", "submit", "file url required", nil)
	}
	taskJSON, err := json.Marshal(taskSpec{
		AppKey:                         c.appKey,
		FileLink:                       fileURL,
		Version:                        "4.0",
		EnablePunctuationPrediction:    true,
		EnableInverseTextNormalization: true,
		EnableDiarization:              true,
		EnableSemanticSentence:         true,
	})
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	body, err := c.caller.Call(ctx, aliyun.Request{
		Method:  http.MethodPost,
		Region:  c.region,
		Domain:  c.domain(),
		Version: apiVersion,
		Product: product,
		Action:  "SubmitTask",
		Form:    map[string]string{"Task": string(taskJSON)},
	})
	if err != nil {
		return "", err
	}
	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", services.Wrap(services.ErrParse, "filetrans", "submit", "decode response", err)
	}
	if resp.StatusText != "SUCCESS" {
		return "", &services.UpstreamError{
			Provider:   "aliyun-filetrans",
			StatusCode: resp.StatusCode,
			Code:       resp.StatusText,
			Message:    resp.Message,
		}
	}
	if resp.TaskID == "" {
		return "", services.Wrap(services.ErrUpstream, "filetrans", "submit", "response carried no task id", nil)
	}
	c.logger.Info("file transcription submitted", logging.String("task_id", resp.TaskID))
	return resp.TaskID, nil
}

type resultResponse struct {
	TaskID     string          `json:"TaskId"`
	StatusText string          `json:"StatusText"`
	Message    string          `json:"Message"`
	Result     json.RawMessage `json:"Result"`
}

type sentence struct {
	Text      string          `json:"Text"`
	BeginTime int64           `json:"BeginTime"`
	EndTime   int64           `json:"EndTime"`
	SpeakerID json.RawMessage `json:"SpeakerId"`
	ChannelID *int            `json:"ChannelId"`
}

// Status queries the job once.
func (c *Client) Status(ctx context.Context, taskID string) (Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Task{}, services.Wrap(services.ErrValidation, "filetrans", "status", "task id required", nil)
	}
	body, err := c.caller.Call(ctx, aliyun.Request{
		Method:  http.MethodGet,
		Region:  c.region,
		Domain:  c.domain(),
		Version: apiVersion,
		Product: product,
		Action:  "GetTaskResult",
		Query:   map[string]string{"TaskId": taskID},
	})
	if err != nil {
		return Task{}, err
	}
	return parseResult(taskID, body)
}

// MapStatus normalizes an upstream status text.
func MapStatus(statusText string) Status {
	switch statusText {
	case "SUCCESS", "SUCCESS_WITH_NO_VALID_FRAGMENT":
		return StatusSuccess
	case "RUNNING":
		return StatusRunning
	case "QUEUEING":
		return StatusQueuing
	default:
		return StatusFailed
	}
}

func parseResult(taskID string, body []byte) (Task, error) {
	var resp resultResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Task{}, services.Wrap(services.ErrParse, "filetrans", "status", "decode response", err)
	}
	task := Task{ID: taskID, Status: MapStatus(resp.StatusText)}
	switch task.Status {
	case StatusFailed:
		task.Error = firstNonEmpty(resp.Message, resp.StatusText, "recognition failed")
	case StatusSuccess:
		task.Segments, task.Text = parseSentences(resp.Result)
	}
	return task, nil
}

func parseSentences(raw json.RawMessage) ([]transcript.Segment, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}
	var wrapped struct {
		Sentences []sentence `json:"Sentences"`
	}
	var sentences []sentence
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Sentences != nil {
		sentences = wrapped.Sentences
	} else if err := json.Unmarshal(raw, &sentences); err != nil {
		var text string
		if json.Unmarshal(raw, &text) == nil {
			return nil, text
		}
		return nil, string(raw)
	}

	segments := make([]transcript.Segment, 0, len(sentences))
	for _, s := range sentences {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			SpeakerID: speakerOf(s),
			Text:      s.Text,
			BeginTime: s.BeginTime,
			EndTime:   s.EndTime,
		})
	}
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return segments, b.String()
}

func speakerOf(s sentence) int {
	if len(s.SpeakerID) > 0 && string(s.SpeakerID) != "null" {
		var n int
		if json.Unmarshal(s.SpeakerID, &n) == nil {
			return n
		}
		var str string
		if json.Unmarshal(s.SpeakerID, &str) == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
				return n
			}
		}
	}
	if s.ChannelID != nil {
		return *s.ChannelID
	}
	return 0
}

// PollOptions tunes Poll.
type PollOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	OnProgress func(Status)
}

// Poll queries the job until it succeeds, fails, or the timeout elapses.
func (c *Client) Poll(ctx context.Context, taskID string, opts PollOptions) (Task, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	start := c.now()
	for {
		if c.now().Sub(start) > timeout {
			return Task{}, services.Wrap(services.ErrPollTimeout, "filetrans", "poll", fmt.Sprintf("task %s did not finish within %s", taskID, timeout), nil)
		}
		task, err := c.Status(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(task.Status)
		}
		c.logger.Debug("file transcription status",
			logging.String("task_id", taskID),
			logging.String("status", string(task.Status)),
		)
		switch task.Status {
		case StatusSuccess:
			c.logger.Info("file transcription finished",
				logging.String("task_id", taskID),
				logging.Int("segments", len(task.Segments)),
				logging.Int("chars", len([]rune(task.Text))),
			)
			return task, nil
		case StatusFailed:
			return task, &services.UpstreamError{Provider: "aliyun-filetrans", Code: string(StatusFailed), Message: task.Error}
		}
		if err := c.sleep(ctx, interval); err != nil {
			return Task{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
