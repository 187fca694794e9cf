// Package snapshot ranks endpoint variants per model and groups rows into
// per-provider pricing snapshots.
package snapshot

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/openrouter"
)

// missingCost stands in for an unknown per-token cost when ordering variants,
// so incompletely priced variants sort last within their status bucket.
const missingCost = 1e9

// Model is the pricing record for one model at one provider.
type Model struct {
	Selected *extract.Row  `json:"selected" yaml:"selected"`
	Variants []extract.Row `json:"variants" yaml:"variants"`
}

// ProviderSnapshot is the output document for one provider.
type ProviderSnapshot struct {
	GeneratedAt  time.Time        `json:"generatedAt" yaml:"generatedAt"`
	Source       string           `json:"source" yaml:"source"`
	ProviderName string           `json:"providerName" yaml:"providerName"`
	ModelCount   int              `json:"modelCount" yaml:"modelCount"`
	VariantCount int              `json:"variantCount" yaml:"variantCount"`
	Models       map[string]Model `json:"models" yaml:"models"`
}

// SelectBest picks the representative variant: active variants (status 0)
// are preferred, falling back to all variants when none is active. Variants
// without both costs can't be ranked and are dropped. The cheapest total cost
// wins, then the lower prompt cost, then the lower completion cost. Remaining
// ties resolve on tag, endpoint name and quantization so the choice never
// depends on input order. Returns nil when nothing can be ranked.
func SelectBest(variants []extract.Row) *extract.Row {
	pool := make([]extract.Row, 0, len(variants))
	for _, v := range variants {
		if v.Active() {
			pool = append(pool, v)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, variants...)
	}

	var best *extract.Row
	for i := range pool {
		v := pool[i]
		if !v.Priced() {
			continue
		}
		if best == nil || compareRank(v, *best) < 0 {
			best = &v
		}
	}
	return best
}

func compareRank(a, b extract.Row) int {
	return cmp.Or(
		cmp.Compare(a.TotalCost().Value, b.TotalCost().Value),
		cmp.Compare(a.PromptCostPerToken.Value, b.PromptCostPerToken.Value),
		cmp.Compare(a.CompletionCostPerToken.Value, b.CompletionCostPerToken.Value),
		strings.Compare(a.Tag, b.Tag),
		strings.Compare(a.EndpointName, b.EndpointName),
		strings.Compare(a.Quantization, b.Quantization),
	)
}

// SortVariants orders variants for presentation: active before everything
// else, then by summed cost with unknown costs counted as missingCost, then by
// tag. The sort is stable.
func SortVariants(variants []extract.Row) {
	slices.SortStableFunc(variants, CompareVariants)
}

// CompareVariants is the presentation order used by SortVariants.
func CompareVariants(a, b extract.Row) int {
	return cmp.Or(
		cmp.Compare(statusBucket(a), statusBucket(b)),
		cmp.Compare(sortCost(a), sortCost(b)),
		strings.Compare(a.Tag, b.Tag),
	)
}

func statusBucket(r extract.Row) int {
	if r.Active() {
		return 0
	}
	return 1
}

func sortCost(r extract.Row) float64 {
	return r.PromptCostPerToken.Or(missingCost) + r.CompletionCostPerToken.Or(missingCost)
}

// Group buckets rows by lower-cased provider name, then by model id. Every
// name in providers is present even when no row matched it. Selection runs
// over each model's variants in extraction order, before sorting.
func Group(rows []extract.Row, providers []string) map[string]map[string]Model {
	grouped := make(map[string]map[string][]extract.Row, len(providers))
	for _, p := range providers {
		grouped[strings.ToLower(p)] = make(map[string][]extract.Row)
	}

	for _, r := range rows {
		key := strings.ToLower(r.ProviderName)
		bucket, ok := grouped[key]
		if !ok {
			bucket = make(map[string][]extract.Row)
			grouped[key] = bucket
		}
		bucket[r.ModelID] = append(bucket[r.ModelID], r)
	}

	out := make(map[string]map[string]Model, len(grouped))
	for provider, models := range grouped {
		out[provider] = make(map[string]Model, len(models))
		for id, variants := range models {
			selected := SelectBest(variants)
			sorted := slices.Clone(variants)
			SortVariants(sorted)
			out[provider][id] = Model{Selected: selected, Variants: sorted}
		}
	}
	return out
}

// Build returns one snapshot per configured provider, in configuration order.
func Build(rows []extract.Row, providers []string, generatedAt time.Time) []ProviderSnapshot {
	grouped := Group(rows, providers)

	snapshots := make([]ProviderSnapshot, 0, len(providers))
	for _, p := range providers {
		key := strings.ToLower(p)
		models := grouped[key]

		variantCount := 0
		for _, m := range models {
			variantCount += len(m.Variants)
		}

		snapshots = append(snapshots, ProviderSnapshot{
			GeneratedAt:  generatedAt,
			Source:       openrouter.Source,
			ProviderName: key,
			ModelCount:   len(models),
			VariantCount: variantCount,
			Models:       models,
		})
	}
	return snapshots
}
