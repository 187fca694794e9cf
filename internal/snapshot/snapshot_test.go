package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/num"
)

func variant(tag string, status, prompt, completion *float64) extract.Row {
	r := extract.Row{ModelID: "m", ProviderName: "Mistral", Tag: tag}
	if status != nil {
		r.Status = num.Of(*status)
	}
	if prompt != nil {
		r.PromptCostPerToken = num.Of(*prompt)
	}
	if completion != nil {
		r.CompletionCostPerToken = num.Of(*completion)
	}
	return r
}

func f(v float64) *float64 { return &v }

func tags(rows []extract.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Tag
	}
	return out
}

// permutations returns every ordering of rows.
func permutations(rows []extract.Row) [][]extract.Row {
	if len(rows) <= 1 {
		return [][]extract.Row{append([]extract.Row(nil), rows...)}
	}
	var out [][]extract.Row
	for i := range rows {
		rest := make([]extract.Row, 0, len(rows)-1)
		rest = append(rest, rows[:i]...)
		rest = append(rest, rows[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]extract.Row{rows[i]}, p...))
		}
	}
	return out
}

func TestSelectBest_PrefersActive(t *testing.T) {
	active := variant("active", f(0), f(5), f(5))
	cheapDegraded := variant("degraded", f(-1), f(1), f(1))

	got := SelectBest([]extract.Row{cheapDegraded, active})
	require.NotNil(t, got)
	assert.Equal(t, "active", got.Tag)
}

func TestSelectBest_FallsBackWhenNoneActive(t *testing.T) {
	a := variant("a", f(-2), f(3), f(3))
	b := variant("b", f(-3), f(1), f(2))

	got := SelectBest([]extract.Row{a, b})
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Tag)
}

func TestSelectBest_RequiresBothCosts(t *testing.T) {
	onlyPrompt := variant("p", f(0), f(0.1), nil)
	onlyCompletion := variant("c", f(0), nil, f(0.1))
	assert.Nil(t, SelectBest([]extract.Row{onlyPrompt, onlyCompletion}))
	assert.Nil(t, SelectBest(nil))

	priced := variant("x", f(0), f(9), f(9))
	got := SelectBest([]extract.Row{onlyPrompt, priced, onlyCompletion})
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Tag)
}

func TestSelectBest_ActiveButUnpricedDoesNotFallBack(t *testing.T) {
	activeUnpriced := variant("a", f(0), nil, nil)
	inactivePriced := variant("b", f(1), f(1), f(1))
	assert.Nil(t, SelectBest([]extract.Row{activeUnpriced, inactivePriced}))
}

func TestSelectBest_TieBreakOnPromptCost(t *testing.T) {
	// Same total (3), different split.
	highPrompt := variant("high", f(0), f(2), f(1))
	lowPrompt := variant("low", f(0), f(1), f(2))

	got := SelectBest([]extract.Row{highPrompt, lowPrompt})
	require.NotNil(t, got)
	assert.Equal(t, "low", got.Tag)
}

func TestSelectBest_PermutationInvariant(t *testing.T) {
	rows := []extract.Row{
		variant("b", f(0), f(1), f(2)),
		variant("a", f(0), f(1), f(2)),
		variant("c", f(0), f(2), f(1)),
		variant("d", f(1), f(0.1), f(0.1)),
		variant("e", f(0), nil, f(0.5)),
	}

	for _, p := range permutations(rows) {
		got := SelectBest(p)
		require.NotNil(t, got)
		assert.Equal(t, "a", got.Tag, "order %v", tags(p))
	}
}

func TestSelectBest_ReturnsCopy(t *testing.T) {
	rows := []extract.Row{variant("a", f(0), f(1), f(1))}
	got := SelectBest(rows)
	require.NotNil(t, got)
	got.Tag = "mutated"
	assert.Equal(t, "a", rows[0].Tag)
}

func TestSortVariants(t *testing.T) {
	rows := []extract.Row{
		variant("inactive-cheap", f(1), f(0.1), f(0.1)),
		variant("active-unpriced", f(0), nil, nil),
		variant("active-b", f(0), f(1), f(1)),
		variant("active-a", f(0), f(1), f(1)),
		variant("active-cheap", f(0), f(0.5), f(0.5)),
		variant("unknown-status", nil, f(0.01), f(0.01)),
		variant("active-half-priced", f(0), f(0.1), nil),
	}

	SortVariants(rows)
	assert.Equal(t, []string{
		"active-cheap",
		"active-a",
		"active-b",
		"active-half-priced",
		"active-unpriced",
		"unknown-status",
		"inactive-cheap",
	}, tags(rows))
}

func TestGroup(t *testing.T) {
	rows := []extract.Row{
		{ModelID: "m1", ProviderName: "Mistral", Tag: "z", Status: num.Of(0), PromptCostPerToken: num.Of(2), CompletionCostPerToken: num.Of(2)},
		{ModelID: "m1", ProviderName: "mistral", Tag: "y", Status: num.Of(0), PromptCostPerToken: num.Of(1), CompletionCostPerToken: num.Of(1)},
		{ModelID: "m2", ProviderName: "MISTRAL", Tag: "x", Status: num.Of(0)},
		{ModelID: "m1", ProviderName: "Other", Tag: "o"},
	}

	grouped := Group(rows, []string{"mistral", "nebius"})

	require.Contains(t, grouped, "nebius")
	assert.Empty(t, grouped["nebius"])

	mistral := grouped["mistral"]
	require.Len(t, mistral, 2)
	assert.Equal(t, []string{"y", "z"}, tags(mistral["m1"].Variants))
	require.NotNil(t, mistral["m1"].Selected)
	assert.Equal(t, "y", mistral["m1"].Selected.Tag)
	assert.Nil(t, mistral["m2"].Selected)
	assert.Len(t, mistral["m2"].Variants, 1)

	// Rows of unconfigured providers are still grouped.
	assert.Contains(t, grouped, "other")
}

func TestGroup_DoesNotReorderInput(t *testing.T) {
	rows := []extract.Row{
		{ModelID: "m", ProviderName: "mistral", Tag: "b", Status: num.Of(0)},
		{ModelID: "m", ProviderName: "mistral", Tag: "a", Status: num.Of(0)},
	}
	Group(rows, []string{"mistral"})
	assert.Equal(t, []string{"b", "a"}, tags(rows))
}

func TestBuild(t *testing.T) {
	gen := time.Date(2026, 10, 19, 12, 5, 0, 0, time.UTC)
	rows := []extract.Row{
		{ModelID: "m1", ProviderName: "Mistral", Tag: "a", Status: num.Of(0), PromptCostPerToken: num.Of(1), CompletionCostPerToken: num.Of(1)},
		{ModelID: "m1", ProviderName: "Mistral", Tag: "b", Status: num.Of(0), PromptCostPerToken: num.Of(2), CompletionCostPerToken: num.Of(2)},
		{ModelID: "m2", ProviderName: "Mistral", Tag: "c", Status: num.Of(0)},
	}

	snaps := Build(rows, []string{"mistral", "nebius"}, gen)
	require.Len(t, snaps, 2)

	m := snaps[0]
	assert.Equal(t, "mistral", m.ProviderName)
	assert.Equal(t, "openrouter-provider-endpoints", m.Source)
	assert.Equal(t, gen, m.GeneratedAt)
	assert.Equal(t, 2, m.ModelCount)
	assert.Equal(t, 3, m.VariantCount)

	n := snaps[1]
	assert.Equal(t, "nebius", n.ProviderName)
	assert.Equal(t, 0, n.ModelCount)
	assert.Equal(t, 0, n.VariantCount)
	assert.NotNil(t, n.Models)
	assert.Empty(t, n.Models)
}
