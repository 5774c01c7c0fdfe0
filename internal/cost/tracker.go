package cost

import (
	"sync"

	"github.com/roamline/trip-cli/internal/model"
)

// ProviderTotals accumulates usage for one provider.
type ProviderTotals struct {
	Calls   int              `json:"calls"`
	Usage   model.TokenUsage `json:"usage"`
	CostUSD float64          `json:"cost_usd"`
}

// Summary is a snapshot of all accumulated usage.
type Summary struct {
	TotalCalls   int                       `json:"total_calls"`
	TotalTokens  int64                     `json:"total_tokens"`
	TotalCostUSD float64                   `json:"total_cost_usd"`
	Providers    map[string]ProviderTotals `json:"providers"`
}

// Tracker accumulates per-provider call counts, token usage, and cost. It is
// shared by concurrently executing workers and validations, so all methods
// serialize through an internal mutex.
type Tracker struct {
	calc *Calculator

	mu        sync.Mutex
	providers map[string]ProviderTotals
}

// NewTracker creates a Tracker priced by calc.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{
		calc:      calc,
		providers: make(map[string]ProviderTotals),
	}
}

// RecordQuery records one flat-rate query against a provider.
func (t *Tracker) RecordQuery(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals := t.providers[provider]
	totals.Calls++
	totals.CostUSD += t.calc.Query(provider)
	t.providers[provider] = totals
}

// RecordTokens records one token-metered call against a provider.
func (t *Tracker) RecordTokens(provider, llmModel string, usage model.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals := t.providers[provider]
	totals.Calls++
	totals.Usage.Add(usage)
	totals.CostUSD += t.calc.Tokens(llmModel, usage.InputTokens, usage.OutputTokens)
	t.providers[provider] = totals
}

// Summary returns a snapshot of accumulated usage.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{Providers: make(map[string]ProviderTotals, len(t.providers))}
	for provider, totals := range t.providers {
		s.Providers[provider] = totals
		s.TotalCalls += totals.Calls
		s.TotalTokens += totals.Usage.Total()
		s.TotalCostUSD += totals.CostUSD
	}
	return s
}
