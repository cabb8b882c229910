// Package ppg uploads recorded fingertip clips to the analysis backend and
// turns its response into a heart-rate result.
package ppg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"vitalscan/capture"
	"vitalscan/core"
	"vitalscan/logging"
)

// Result is a completed heart-rate measurement.
type Result struct {
	BPM        int
	CapturedAt time.Time
}

// ProgressFunc receives upload progress snapshots. It is called from the
// upload goroutine; implementations must be fast and must not block.
type ProgressFunc func(info core.ProgressInfo)

// Client talks to the analysis backend. One Analyze call makes exactly one
// request; there is no retry layer, the caller decides whether to measure
// again.
type Client struct {
	endpoint       string
	httpClient     *http.Client
	maxUploadBytes int64
	log            *logging.Logger
}

// NewClient creates an analysis client.
//
// The httpClient's timeout must cover the full request including backend
// processing time; the backend decodes and analyzes the whole clip before
// answering.
func NewClient(endpoint string, httpClient *http.Client, maxUploadBytes int64, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		endpoint:       endpoint,
		httpClient:     httpClient,
		maxUploadBytes: maxUploadBytes,
		log:            log.Named("ppg"),
	}
}

// NewClientFromConfig wires a Client from the application configuration.
func NewClientFromConfig(cfg *core.Config, log *logging.Logger) *Client {
	return NewClient(cfg.AnalyzeURL, core.GetHTTPClient(cfg, cfg.AnalyzeTimeout), cfg.MaxUploadBytes, log)
}

// Analyze uploads the clip and returns the measured heart rate.
//
// Analyze takes ownership of the handle: the underlying file is released
// before Analyze returns, on every path, success and failure alike.
// onProgress may be nil.
func (c *Client) Analyze(ctx context.Context, handle *capture.VideoHandle, onProgress ProgressFunc) (*Result, error) {
	defer func() {
		if err := handle.Release(); err != nil {
			c.log.Warn("clip cleanup failed", zap.String("path", handle.Path()), zap.Error(err))
		}
	}()

	capturedAt := time.Now()

	info, err := os.Stat(handle.Path())
	if err != nil || info.Size() == 0 {
		return nil, core.NewNoFileProduced(handle.Path())
	}
	if c.maxUploadBytes > 0 && info.Size() > c.maxUploadBytes {
		return nil, core.NewFileTooLarge(info.Size(), c.maxUploadBytes)
	}

	body, contentType, err := c.buildMultipart(handle.Path())
	if err != nil {
		return nil, core.NewCaptureFailed(fmt.Errorf("prepare upload: %w", err))
	}

	tracker := core.NewProgressTracker(int64(body.Len()))
	reader := newProgressReader(body, tracker, onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, reader)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = tracker.Total()

	c.log.Info("uploading clip",
		zap.String("endpoint", c.endpoint),
		zap.String("size", core.FormatBytes(info.Size())),
	)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewNetworkError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewServerError(resp.StatusCode, extractDetail(raw))
	}

	bpm, err := parseBPM(raw)
	if err != nil {
		return nil, err
	}

	c.log.Info("analysis complete",
		zap.Int("bpm", bpm),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &Result{BPM: bpm, CapturedAt: capturedAt}, nil
}

// buildMultipart assembles the upload body in memory. Clips are small by
// design (low resolution, short duration, size-checked above), so buffering
// is cheaper than a streaming pipe and gives an exact total for progress.
func (c *Client) buildMultipart(path string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", "video/mp4")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

// parseBPM extracts the heart rate from a 2xx response body.
func parseBPM(raw []byte) (int, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, core.NewMalformedResponse(string(raw))
	}

	value, ok := payload["bpm"]
	if !ok {
		return 0, core.NewMissingResultField("bpm")
	}
	number, ok := value.(float64)
	if !ok {
		return 0, core.NewMissingResultField("bpm")
	}

	return int(math.Round(number)), nil
}

// extractDetail pulls a human-readable explanation out of an error response
// body. Backends vary between "detail" and "message"; anything else is
// surfaced as truncated raw text.
func extractDetail(raw []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"detail", "message"} {
			if text, ok := payload[key].(string); ok && text != "" {
				return text
			}
		}
	}
	return core.Truncate(string(bytes.TrimSpace(raw)), 256)
}
