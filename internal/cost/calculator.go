// Package cost accounts for provider usage across a run.
package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing configuration: token-metered LLM models
// and flat per-query providers.
type Rates struct {
	Models   map[string]ModelRate `yaml:"models" mapstructure:"models"`
	PerQuery map[string]float64   `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of an LLM call. Unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Query returns the flat per-query cost for a provider. Unknown providers
// cost 0.
func (c *Calculator) Query(provider string) float64 {
	return c.rates.PerQuery[provider]
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		PerQuery: map[string]float64{
			"places": 0.032,
			"atlas":  0.004,
		},
	}
}
