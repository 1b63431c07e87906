package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	apiVersion          = "2024-11-30"
	defaultPollInterval = 2 * time.Second
	defaultHTTPTimeout  = 30 * time.Second
)

// Extractor is the structured document-extraction collaborator: raw bytes
// plus a schema in, a flat field mapping out.
type Extractor interface {
	Analyze(ctx context.Context, data []byte, schema Schema) (*AnalysisResult, error)
}

// AzureExtractor calls the Azure Document Intelligence REST API. Analysis is
// a submit-then-poll exchange: the analyze call returns 202 with an
// operation URL, which is polled until the run settles.
type AzureExtractor struct {
	Endpoint     string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

// NewAzureExtractor builds an extractor against a Document Intelligence
// endpoint.
func NewAzureExtractor(endpoint, apiKey string) (*AzureExtractor, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("document intelligence credentials not configured")
	}
	return &AzureExtractor{
		Endpoint:     endpoint,
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: defaultHTTPTimeout},
		PollInterval: defaultPollInterval,
	}, nil
}

// ─── wire types ───────────────────────────────────────────────────────────────

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type analyzeField struct {
	Content    string           `json:"content"`
	ValueArray []analyzeElement `json:"valueArray,omitempty"`
}

type analyzeElement struct {
	ValueObject map[string]analyzeField `json:"valueObject,omitempty"`
}

type analyzeResponse struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	AnalyzeResult *struct {
		Documents []struct {
			Fields map[string]analyzeField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult,omitempty"`
}

// ─── analysis ─────────────────────────────────────────────────────────────────

// Analyze submits the document and polls until the service settles, then
// converts the first returned document into an AnalysisResult.
func (a *AzureExtractor) Analyze(ctx context.Context, data []byte, schema Schema) (*AnalysisResult, error) {
	opURL, err := a.submit(ctx, data, schema)
	if err != nil {
		return nil, err
	}

	resp, err := a.poll(ctx, opURL)
	if err != nil {
		return nil, err
	}

	if resp.AnalyzeResult == nil || len(resp.AnalyzeResult.Documents) == 0 {
		return nil, fmt.Errorf("document service: no structured fields detected")
	}

	doc := resp.AnalyzeResult.Documents[0]
	result := &AnalysisResult{Fields: make(map[string]string, len(doc.Fields))}
	for name, field := range doc.Fields {
		if name == "Items" {
			for _, el := range field.ValueArray {
				item := make(map[string]string, len(el.ValueObject))
				for k, v := range el.ValueObject {
					item[k] = v.Content
				}
				result.Items = append(result.Items, item)
			}
			continue
		}
		result.Fields[name] = field.Content
	}
	return result, nil
}

func (a *AzureExtractor) submit(ctx context.Context, data []byte, schema Schema) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		a.Endpoint, schema, apiVersion)

	body, err := json.Marshal(analyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", fmt.Errorf("document service: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("document service: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.APIKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("document service: analyze call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("document service: analyze returned %d: %s", resp.StatusCode, payload)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("document service: analyze response missing Operation-Location")
	}
	return opURL, nil
}

func (a *AzureExtractor) poll(ctx context.Context, opURL string) (*analyzeResponse, error) {
	interval := a.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, fmt.Errorf("document service: build poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.APIKey)

		resp, err := a.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("document service: poll call: %w", err)
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("document service: read poll response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("document service: poll returned %d: %s", resp.StatusCode, payload)
		}

		var parsed analyzeResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return nil, fmt.Errorf("document service: decode poll response: %w", err)
		}

		switch parsed.Status {
		case "succeeded":
			return &parsed, nil
		case "failed":
			msg := "analysis failed"
			if parsed.Error != nil {
				msg = parsed.Error.Message
			}
			return nil, fmt.Errorf("document service: %s", msg)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("document service: poll cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}
