// Package extract flattens endpoint documents into one row per provider
// endpoint, keeping only the target providers.
package extract

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/everstacklabs/pricewatch/internal/catalog"
	"github.com/everstacklabs/pricewatch/internal/harvest"
	"github.com/everstacklabs/pricewatch/internal/num"
)

const perMillion = 1_000_000

// Row is one provider endpoint of one model.
type Row struct {
	ModelID                      string    `json:"modelId" yaml:"modelId"`
	ProviderName                 string    `json:"providerName" yaml:"providerName"`
	EndpointName                 string    `json:"endpointName" yaml:"endpointName"`
	Tag                          string    `json:"tag" yaml:"tag"`
	Status                       num.Float `json:"status" yaml:"status"`
	Quantization                 string    `json:"quantization" yaml:"quantization"`
	ContextLength                num.Float `json:"contextLength" yaml:"contextLength"`
	MaxCompletionTokens          num.Float `json:"maxCompletionTokens" yaml:"maxCompletionTokens"`
	MaxPromptTokens              num.Float `json:"maxPromptTokens" yaml:"maxPromptTokens"`
	PromptCostPerToken           num.Float `json:"promptCostPerToken" yaml:"promptCostPerToken"`
	CompletionCostPerToken       num.Float `json:"completionCostPerToken" yaml:"completionCostPerToken"`
	PromptCostPer1M              num.Float `json:"promptCostPer1M" yaml:"promptCostPer1M"`
	CompletionCostPer1M          num.Float `json:"completionCostPer1M" yaml:"completionCostPer1M"`
	SupportsImplicitCaching      bool      `json:"supportsImplicitCaching" yaml:"supportsImplicitCaching"`
	UptimeLast30m                num.Float `json:"uptimeLast30m" yaml:"uptimeLast30m"`
	SourceModelPricingPrompt     num.Float `json:"sourceModelPricingPrompt" yaml:"sourceModelPricingPrompt"`
	SourceModelPricingCompletion num.Float `json:"sourceModelPricingCompletion" yaml:"sourceModelPricingCompletion"`
	ExtractedAt                  time.Time `json:"extractedAt" yaml:"extractedAt"`
}

// Active reports whether the endpoint status is 0.
func (r Row) Active() bool {
	return r.Status.Is(0)
}

// Priced reports whether both per-token costs are known.
func (r Row) Priced() bool {
	return r.PromptCostPerToken.Valid && r.CompletionCostPerToken.Valid
}

// TotalCost is prompt plus completion cost per token; unknown if either is.
func (r Row) TotalCost() num.Float {
	return r.PromptCostPerToken.Add(r.CompletionCostPerToken)
}

// Index resolves catalog entries by model id.
type Index interface {
	Lookup(id string) (catalog.Entry, bool)
}

// ProviderSet is a set of lower-cased provider names.
type ProviderSet map[string]bool

// NewProviderSet lower-cases and trims names.
func NewProviderSet(names []string) ProviderSet {
	s := make(ProviderSet, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			s[n] = true
		}
	}
	return s
}

// Has matches a provider name case-insensitively.
func (s ProviderSet) Has(name string) bool {
	return s[strings.ToLower(name)]
}

// Extract returns rows for every endpoint of a successful result whose
// provider is in targets. Failed results are skipped. Every row carries
// extractedAt, the run's start time.
func Extract(results []harvest.TaskResult, targets ProviderSet, idx Index, extractedAt time.Time) []Row {
	rows := make([]Row, 0)
	for _, res := range results {
		if !res.OK {
			continue
		}
		rows = append(rows, FromPayload(res.ModelID, res.Payload, targets, idx, extractedAt)...)
	}
	return rows
}

// FromPayload extracts rows from one endpoint document. fallbackID is used
// when the document carries no model id.
func FromPayload(fallbackID string, payload []byte, targets ProviderSet, idx Index, extractedAt time.Time) []Row {
	data := gjson.GetBytes(payload, "data")

	modelID := text(data.Get("id"))
	if modelID == "" {
		modelID = fallbackID
	}

	var entry catalog.Entry
	if idx != nil {
		entry, _ = idx.Lookup(modelID)
	}

	endpoints := data.Get("endpoints")
	if !endpoints.IsArray() {
		return nil
	}

	var rows []Row
	for _, ep := range endpoints.Array() {
		provider := strings.TrimSpace(text(ep.Get("provider_name")))
		if provider == "" || !targets.Has(provider) {
			continue
		}

		prompt := num.Parse(ep.Get("pricing.prompt"))
		completion := num.Parse(ep.Get("pricing.completion"))

		rows = append(rows, Row{
			ModelID:                      modelID,
			ProviderName:                 provider,
			EndpointName:                 text(ep.Get("name")),
			Tag:                          text(ep.Get("tag")),
			Status:                       num.Parse(ep.Get("status")),
			Quantization:                 text(ep.Get("quantization")),
			ContextLength:                num.Parse(ep.Get("context_length")),
			MaxCompletionTokens:          num.Parse(ep.Get("max_completion_tokens")),
			MaxPromptTokens:              num.Parse(ep.Get("max_prompt_tokens")),
			PromptCostPerToken:           prompt,
			CompletionCostPerToken:       completion,
			PromptCostPer1M:              prompt.Scale(perMillion),
			CompletionCostPer1M:          completion.Scale(perMillion),
			SupportsImplicitCaching:      truthy(ep.Get("supports_implicit_caching")),
			UptimeLast30m:                num.Parse(ep.Get("uptime_last_30m")),
			SourceModelPricingPrompt:     entry.PromptPrice,
			SourceModelPricingCompletion: entry.CompletionPrice,
			ExtractedAt:                  extractedAt,
		})
	}
	return rows
}

// text returns scalar values as strings; null, false, objects and arrays
// yield "".
func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True:
		return r.String()
	default:
		return ""
	}
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return false
	}
}
