package nutrition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"vitalscan/core"
	"vitalscan/logging"
)

// ErrProductNotFound indicates the barcode is not in the product database.
// This is an expected outcome, not a backend failure.
var ErrProductNotFound = errors.New("nutrition: product not found")

// ErrNotConfigured indicates the corresponding endpoint was not set; the
// food flows are optional and degrade to this at the point of use.
var ErrNotConfigured = errors.New("nutrition: endpoint not configured")

// FoodItem is one recognized food in a photo.
type FoodItem struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Analysis is the result of a food photo scan.
type Analysis struct {
	Foods      []FoodItem
	CapturedAt time.Time
}

// Summary renders a one-line description for the history list.
func (a *Analysis) Summary() string {
	if len(a.Foods) == 0 {
		return "no foods recognized"
	}
	var total float64
	names := make([]string, 0, len(a.Foods))
	for _, f := range a.Foods {
		names = append(names, f.Name)
		total += f.Calories
	}
	return fmt.Sprintf("%s (~%.0f kcal)", strings.Join(names, ", "), total)
}

// Product is a barcode lookup result. Nutriment values are per 100g.
type Product struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Client talks to the food analysis and barcode backends.
type Client struct {
	photoEndpoint   string
	barcodeEndpoint string
	httpClient      *http.Client
	maxImageDim     int
	log             *logging.Logger
}

// NewClient creates a nutrition client. Either endpoint may be empty; the
// corresponding flow then reports ErrNotConfigured.
func NewClient(photoEndpoint, barcodeEndpoint string, httpClient *http.Client, maxImageDim int, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		photoEndpoint:   photoEndpoint,
		barcodeEndpoint: barcodeEndpoint,
		httpClient:      httpClient,
		maxImageDim:     maxImageDim,
		log:             log.Named("nutrition"),
	}
}

// NewClientFromConfig wires a Client from the application configuration.
func NewClientFromConfig(cfg *core.Config, log *logging.Logger) *Client {
	return NewClient(
		cfg.NutritionURL,
		cfg.BarcodeURL,
		core.GetHTTPClient(cfg, cfg.AnalyzeTimeout),
		cfg.MaxImageDim,
		log,
	)
}

// AnalyzePhoto preprocesses the photo and uploads it for food recognition.
func (c *Client) AnalyzePhoto(ctx context.Context, photo []byte) (*Analysis, error) {
	if c.photoEndpoint == "" {
		return nil, ErrNotConfigured
	}

	capturedAt := time.Now()

	prepared, err := PreparePhoto(photo, c.maxImageDim)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("prepare upload: %w", err)
	}
	if _, err := part.Write(prepared); err != nil {
		return nil, fmt.Errorf("prepare upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("prepare upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.photoEndpoint, body)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.log.Info("uploading food photo", zap.String("size", core.FormatBytes(int64(len(prepared)))))

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

	return parseAnalysis(raw, capturedAt)
}

// LookupBarcode fetches product data for a scanned barcode.
func (c *Client) LookupBarcode(ctx context.Context, code string) (*Product, error) {
	if c.barcodeEndpoint == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("nutrition: empty barcode")
	}

	endpoint := strings.TrimRight(c.barcodeEndpoint, "/") + "/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewNetworkError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewServerError(resp.StatusCode, extractDetail(raw))
	}

	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, core.NewMalformedResponse(string(raw))
	}
	if product.Name == "" {
		return nil, core.NewMissingResultField("name")
	}
	if product.Code == "" {
		product.Code = code
	}

	return &product, nil
}

// parseAnalysis extracts the foods array from a 2xx response body.
func parseAnalysis(raw []byte, capturedAt time.Time) (*Analysis, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, core.NewMalformedResponse(string(raw))
	}

	foodsRaw, ok := payload["foods"]
	if !ok {
		return nil, core.NewMissingResultField("foods")
	}

	var foods []FoodItem
	if err := json.Unmarshal(foodsRaw, &foods); err != nil {
		return nil, core.NewMissingResultField("foods")
	}

	return &Analysis{Foods: foods, CapturedAt: capturedAt}, nil
}

// extractDetail pulls a human-readable explanation out of an error response
// body, mirroring how the analysis backend reports failures.
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
