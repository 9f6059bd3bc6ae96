// Package external contains clients for outbound collaborators: the
// generative model that produces clinical explanation narratives and the
// Redis-backed response cache. Clients are wrapped by ResilientExplainer,
// which adds circuit breaking and two-tier caching.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pharmaguard-server/internal/domain"
)

// systemInstruction constrains the model to CPIC-grounded, JSON-only output.
const systemInstruction = `You are PharmaGuard Clinical AI, a pharmacogenomics expert assistant.
You provide CPIC-guideline-grounded clinical explanations for drug-gene interactions.

STRICT RULES:
1. Only reference established CPIC guidelines and published pharmacogenomic evidence.
2. Do NOT speculate or invent drug-gene interactions.
3. Always cite specific rsIDs and their functional impact.
4. Explain the biological mechanism clearly.
5. Include dosing rationale based on the metabolizer phenotype.
6. Use professional clinical language suitable for healthcare providers.
7. Never include raw genomic data or patient identifiers.

You MUST respond with ONLY valid JSON matching this exact schema:
{
  "summary": "Brief 2-3 sentence clinical summary",
  "mechanism_of_action": "How the gene variant affects drug metabolism/transport",
  "variant_significance": "Clinical significance of the detected variants with rsID citations",
  "dosing_rationale": "CPIC-aligned dosing recommendation rationale"
}
`

// ExplainClient calls a Gemini-style generateContent endpoint to produce
// clinical explanation narratives.
type ExplainClient struct {
	baseURL     string
	apiKey      string
	model       string
	httpClient  *http.Client
	rateLimit   *rate.Limiter
	maxTokens   int
	temperature float64
}

// generateContentRequest is the request body for the generateContent endpoint.
type generateContentRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// generateContentResponse is the response body from the generateContent
// endpoint; only the fields the client reads are declared.
type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// explanationPayload mirrors the JSON schema the model is instructed to emit.
type explanationPayload struct {
	Summary             string `json:"summary"`
	MechanismOfAction   string `json:"mechanism_of_action"`
	VariantSignificance string `json:"variant_significance"`
	DosingRationale     string `json:"dosing_rationale"`
}

// NewExplainClient creates a new explanation client.
func NewExplainClient(config domain.ExplainConfig) *ExplainClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}

	return &ExplainClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:   rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}
}

// GenerateExplanation produces a CPIC-grounded clinical explanation for one
// drug analysis. The response must be the JSON object the system instruction
// demands; anything else is an error and the caller falls back.
func (c *ExplainClient) GenerateExplanation(ctx context.Context, req *domain.ExplanationRequest) (domain.Explanation, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return domain.Explanation{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body := generateContentRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemInstruction}}},
		Contents:          []content{{Parts: []part{{Text: buildPrompt(req)}}}},
		GenerationConfig: &generationConfig{
			Temperature:      c.temperature,
			MaxOutputTokens:  c.maxTokens,
			ResponseMimeType: "application/json",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Explanation{}, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Explanation{}, fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Explanation{}, fmt.Errorf("failed to execute generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Explanation{}, fmt.Errorf("generation endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Explanation{}, fmt.Errorf("failed to read generation response: %w", err)
	}

	var genResp generateContentResponse
	if err := json.Unmarshal(raw, &genResp); err != nil {
		return domain.Explanation{}, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return domain.Explanation{}, fmt.Errorf("generation response contained no candidates")
	}

	text := stripCodeFences(genResp.Candidates[0].Content.Parts[0].Text)

	var parsed explanationPayload
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return domain.Explanation{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	return domain.Explanation{
		Summary:             parsed.Summary,
		MechanismOfAction:   parsed.MechanismOfAction,
		VariantSignificance: parsed.VariantSignificance,
		DosingRationale:     parsed.DosingRationale,
	}, nil
}

// buildPrompt renders the clinical explanation prompt for one analysis.
func buildPrompt(req *domain.ExplanationRequest) string {
	variantList := "No specific variants"
	if len(req.Variants) > 0 {
		entries := make([]string, 0, len(req.Variants))
		for _, v := range req.Variants {
			entries = append(entries, fmt.Sprintf("%s (%s)", v.RSID, v.Genotype))
		}
		variantList = strings.Join(entries, ", ")
	}

	return fmt.Sprintf(`Using CPIC guidelines for %[1]s, explain how %[2]s %[3]s (%[4]s phenotype) affects drug metabolism and clinical outcomes.

CONTEXT:
- Drug: %[1]s
- Gene: %[2]s
- Diplotype: %[3]s
- Phenotype: %[4]s
- Risk Classification: %[5]s
- Detected Variants: %[6]s
- Recommended Action: %[7]s

Provide a thorough clinical explanation including:
1. A concise clinical summary
2. The mechanism of action (how this gene/diplotype affects %[1]s metabolism)
3. The clinical significance of the specific variants detected
4. CPIC-aligned dosing rationale for this phenotype

Remember: Respond with ONLY the JSON object. Do not include markdown formatting, code blocks, or any text outside the JSON.`,
		req.Drug, req.Gene, req.Diplotype, req.Phenotype, req.RiskLabel, variantList, req.RecommendedAction)
}

// stripCodeFences removes markdown code fences the model sometimes wraps
// around its JSON despite the response mime type.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
	}
	if strings.HasSuffix(text, "```") {
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
