// Package validate checks pricing snapshots read back from disk.
package validate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/everstacklabs/pricewatch/internal/extract"
	"github.com/everstacklabs/pricewatch/internal/num"
	"github.com/everstacklabs/pricewatch/internal/snapshot"
)

// Severity classifies validation issues.
type Severity int

const (
	SeverityError   Severity = iota // Fails the validate command
	SeverityWarning                 // Reported but doesn't fail
)

// Issue represents a single validation problem.
type Issue struct {
	Severity Severity
	Provider string
	Model    string
	Field    string
	Message  string
}

func (i Issue) String() string {
	sev := "ERROR"
	if i.Severity == SeverityWarning {
		sev = "WARN"
	}
	if i.Model == "" {
		return fmt.Sprintf("[%s] %s: %s: %s", sev, i.Provider, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s/%s: %s: %s", sev, i.Provider, i.Model, i.Field, i.Message)
}

// Result holds all validation issues.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (r *Result) Errors() []Issue {
	var errs []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (r *Result) Warnings() []Issue {
	var warns []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			warns = append(warns, i)
		}
	}
	return warns
}

func (r *Result) add(sev Severity, provider, model, field, msg string) {
	r.Issues = append(r.Issues, Issue{sev, provider, model, field, msg})
}

// ValidateSnapshot checks one provider snapshot for internal consistency.
func ValidateSnapshot(s *snapshot.ProviderSnapshot) *Result {
	r := &Result{}
	p := s.ProviderName

	if p == "" {
		r.add(SeverityError, p, "", "providerName", "required field is empty")
	} else if p != strings.ToLower(p) {
		r.add(SeverityError, p, "", "providerName", "must be lower case")
	}
	if s.GeneratedAt.IsZero() {
		r.add(SeverityError, p, "", "generatedAt", "required field is empty")
	}
	if s.Source == "" {
		r.add(SeverityWarning, p, "", "source", "required field is empty")
	}

	if s.ModelCount != len(s.Models) {
		r.add(SeverityError, p, "", "modelCount",
			fmt.Sprintf("value %d does not match %d models", s.ModelCount, len(s.Models)))
	}

	variants := 0
	for _, id := range sortedIDs(s.Models) {
		m := s.Models[id]
		variants += len(m.Variants)
		validateModel(r, p, id, m)
	}
	if s.VariantCount != variants {
		r.add(SeverityError, p, "", "variantCount",
			fmt.Sprintf("value %d does not match %d variants", s.VariantCount, variants))
	}

	return r
}

func validateModel(r *Result, provider, id string, m snapshot.Model) {
	if len(m.Variants) == 0 {
		r.add(SeverityError, provider, id, "variants", "at least one variant required")
		return
	}

	for i, v := range m.Variants {
		field := fmt.Sprintf("variants[%d]", i)
		if v.ModelID != id {
			r.add(SeverityError, provider, id, field+".modelId",
				fmt.Sprintf("value %q does not match model key", v.ModelID))
		}
		if !strings.EqualFold(v.ProviderName, provider) {
			r.add(SeverityError, provider, id, field+".providerName",
				fmt.Sprintf("value %q does not match snapshot provider", v.ProviderName))
		}
		checkCost(r, provider, id, field+".promptCostPerToken", v.PromptCostPerToken)
		checkCost(r, provider, id, field+".completionCostPerToken", v.CompletionCostPerToken)
		if i > 0 && snapshot.CompareVariants(m.Variants[i-1], v) > 0 {
			r.add(SeverityError, provider, id, field, "variants are out of order")
		}
	}

	want := snapshot.SelectBest(m.Variants)
	switch {
	case m.Selected == nil && want != nil:
		r.add(SeverityError, provider, id, "selected",
			fmt.Sprintf("missing; expected variant %s", describe(*want)))
	case m.Selected == nil:
		r.add(SeverityWarning, provider, id, "selected", "no variant has complete pricing")
	case !slices.ContainsFunc(m.Variants, func(v extract.Row) bool { return sameVariant(v, *m.Selected) }):
		r.add(SeverityError, provider, id, "selected", "not one of the variants")
	case want == nil || !sameVariant(*want, *m.Selected):
		r.add(SeverityError, provider, id, "selected",
			fmt.Sprintf("variant %s is not the cheapest eligible variant", describe(*m.Selected)))
	case !m.Selected.Active():
		r.add(SeverityWarning, provider, id, "selected",
			fmt.Sprintf("selected variant has status %s", m.Selected.Status))
	}
}

func checkCost(r *Result, provider, id, field string, f num.Float) {
	if f.Valid && f.Value < 0 {
		r.add(SeverityError, provider, id, field, fmt.Sprintf("negative cost %s", f))
	}
}

// sameVariant identifies a variant by the fields that distinguish endpoints
// of one model at one provider.
func sameVariant(a, b extract.Row) bool {
	return a.ModelID == b.ModelID &&
		strings.EqualFold(a.ProviderName, b.ProviderName) &&
		a.EndpointName == b.EndpointName &&
		a.Tag == b.Tag &&
		a.Quantization == b.Quantization &&
		a.PromptCostPerToken == b.PromptCostPerToken &&
		a.CompletionCostPerToken == b.CompletionCostPerToken
}

func describe(v extract.Row) string {
	if v.Tag != "" {
		return fmt.Sprintf("%q", v.Tag)
	}
	return fmt.Sprintf("%q", v.EndpointName)
}

func sortedIDs(models map[string]snapshot.Model) []string {
	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ValidateSnapshots validates every snapshot and merges the issues.
func ValidateSnapshots(snaps []*snapshot.ProviderSnapshot) *Result {
	r := &Result{}
	seen := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		if seen[s.ProviderName] {
			r.add(SeverityError, s.ProviderName, "", "providerName", "duplicate snapshot for provider")
		}
		seen[s.ProviderName] = true
		r.Issues = append(r.Issues, ValidateSnapshot(s).Issues...)
	}
	return r
}

// FormatResult formats validation results for display.
func FormatResult(r *Result) string {
	if len(r.Issues) == 0 {
		return "Validation passed: no issues found."
	}

	var b strings.Builder
	errors := r.Errors()
	warnings := r.Warnings()

	if len(errors) > 0 {
		b.WriteString(fmt.Sprintf("Errors (%d):\n", len(errors)))
		for _, e := range errors {
			b.WriteString(fmt.Sprintf("  %s\n", e))
		}
	}

	if len(warnings) > 0 {
		b.WriteString(fmt.Sprintf("Warnings (%d):\n", len(warnings)))
		for _, w := range warnings {
			b.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	return b.String()
}
