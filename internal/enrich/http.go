package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// ErrEmptyExplanation is returned when the service answered without usable text.
var ErrEmptyExplanation = errors.New("empty explanation")

// HTTPEnricher asks a hosted text-generation model to explain violations.
type HTTPEnricher struct {
	url          string
	apiKey       string
	maxNewTokens int
	httpClient   *http.Client
}

var _ domain.Enricher = (*HTTPEnricher)(nil)

// NewHTTPEnricher builds a client from configuration. The request URL is
// <endpoint>/<model>.
func NewHTTPEnricher(cfg domain.EnrichmentConfig) *HTTPEnricher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	url := strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model != "" {
		url += "/" + cfg.Model
	}
	return &HTTPEnricher{
		url:          url,
		apiKey:       cfg.APIKey,
		maxNewTokens: cfg.MaxNewTokens,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Enrich implements domain.Enricher.
func (h *HTTPEnricher) Enrich(ctx context.Context, claim *domain.Claim, violations []domain.Violation) (*domain.Explanation, error) {
	params := map[string]any{}
	if h.maxNewTokens > 0 {
		params["max_new_tokens"] = h.maxNewTokens
	}
	body, err := json.Marshal(map[string]any{
		"inputs":     Prompt(claim, violations),
		"parameters": params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read enrichment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := payload
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return nil, fmt.Errorf("enrichment error %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	return parseResponse(payload)
}

// Prompt renders the model prompt. Personal identifiers are left out.
func Prompt(claim *domain.Claim, violations []domain.Violation) string {
	var b strings.Builder
	b.WriteString("You are a claims adjudication assistant. Given this claim (sensitive IDs masked):\n")

	paid := "none"
	if claim.PaidAmount != nil {
		paid = fmt.Sprintf("%g", *claim.PaidAmount)
	}
	approval := claim.ApprovalNumber
	if approval == "" {
		approval = "none"
	}
	fmt.Fprintf(&b, "service_code=%s, diagnosis_codes=%s, paid_amount=%s, approval_number=%s\n",
		claim.ServiceCode, strings.Join(claim.DiagnosisCodes, ";"), paid, approval)

	b.WriteString("Triggered errors:\n")
	for _, v := range violations {
		b.WriteString("- ")
		b.WriteString(v.Message)
		b.WriteString("\n")
	}
	b.WriteString("\nTask:\n")
	b.WriteString("1) For each triggered error, output one short bullet explaining why it happened (plain English).\n")
	b.WriteString("2) Provide one concise recommended action to fix the claim.\n\n")
	b.WriteString(`Return JSON: { "bullets": ["...","..."], "recommendation": "..." }`)
	b.WriteString("\n")
	return b.String()
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// parseResponse accepts a bare explanation object or a list of
// generated_text items whose text is either JSON or one bullet per line.
func parseResponse(payload []byte) (*domain.Explanation, error) {
	var exp domain.Explanation
	if err := json.Unmarshal(payload, &exp); err == nil && len(exp.Bullets) > 0 {
		return clean(&exp)
	}

	var items []generated
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyExplanation
	}
	return parseText(items[0].GeneratedText)
}

func parseText(text string) (*domain.Explanation, error) {
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		var exp domain.Explanation
		if err := json.Unmarshal([]byte(text[start:end+1]), &exp); err == nil && len(exp.Bullets) > 0 {
			return clean(&exp)
		}
	}

	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "-* "))
		if line != "" {
			bullets = append(bullets, line)
		}
	}
	if len(bullets) == 0 {
		return nil, ErrEmptyExplanation
	}
	return &domain.Explanation{
		Bullets:        bullets,
		Recommendation: bullets[len(bullets)-1],
	}, nil
}

func clean(exp *domain.Explanation) (*domain.Explanation, error) {
	bullets := make([]string, 0, len(exp.Bullets))
	for _, b := range exp.Bullets {
		if b = strings.TrimSpace(b); b != "" {
			bullets = append(bullets, b)
		}
	}
	if len(bullets) == 0 {
		return nil, ErrEmptyExplanation
	}
	return &domain.Explanation{
		Bullets:        bullets,
		Recommendation: strings.TrimSpace(exp.Recommendation),
	}, nil
}
