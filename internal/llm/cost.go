package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Price is the USD cost per 1K tokens for one model family.
type Price struct {
	Prompt     float64
	Completion float64
}

// prices is matched by longest prefix, so "gpt-4o-mini-2024-07-18" resolves
// to the gpt-4o-mini entry. Models without an entry (including every local
// Ollama model) are reported at zero cost.
var prices = map[string]Price{
	"gpt-3.5-turbo": {Prompt: 0.0005, Completion: 0.0015},
	"gpt-4":         {Prompt: 0.03, Completion: 0.06},
	"gpt-4-turbo":   {Prompt: 0.01, Completion: 0.03},
	"gpt-4o":        {Prompt: 0.0025, Completion: 0.01},
	"gpt-4o-mini":   {Prompt: 0.00015, Completion: 0.0006},
	"gpt-4.1":       {Prompt: 0.002, Completion: 0.008},
	"gpt-4.1-mini":  {Prompt: 0.0004, Completion: 0.0016},
}

// PriceFor returns the price entry for model and whether one was found.
func PriceFor(model string) (Price, bool) {
	keys := lo.Keys(prices)
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		if strings.HasPrefix(model, k) {
			return prices[k], true
		}
	}
	return Price{}, false
}

// CostReport summarises the provider's accounting for one generation call.
type CostReport struct {
	Model              string  `json:"model"`
	PromptTokens       int64   `json:"prompt_tokens"`
	CompletionTokens   int64   `json:"completion_tokens"`
	TotalTokens        int64   `json:"total_tokens"`
	SuccessfulRequests int     `json:"successful_requests"`
	TotalCostUSD       float64 `json:"total_cost_usd"`
}

func (c CostReport) String() string {
	return fmt.Sprintf("Tokens Used: %d\n\tPrompt Tokens: %d\n\tCompletion Tokens: %d\nSuccessful Requests: %d\nTotal Cost (USD): $%g",
		c.TotalTokens, c.PromptTokens, c.CompletionTokens, c.SuccessfulRequests, c.TotalCostUSD)
}

// EstimateCost performs exactly one Generate call and reports its token
// usage and price. It adds no logic of its own beyond capturing the
// accounting returned with the call.
func EstimateCost(ctx context.Context, client Client, prompt, model string) (*CostReport, error) {
	resp, err := client.Generate(ctx, Request{Prompt: prompt, Model: model})
	if err != nil {
		return nil, err
	}

	report := &CostReport{
		Model:              model,
		PromptTokens:       resp.Usage.PromptTokens,
		CompletionTokens:   resp.Usage.CompletionTokens,
		TotalTokens:        resp.Usage.TotalTokens,
		SuccessfulRequests: 1,
	}
	if price, ok := PriceFor(model); ok {
		report.TotalCostUSD = float64(resp.Usage.PromptTokens)/1000*price.Prompt +
			float64(resp.Usage.CompletionTokens)/1000*price.Completion
	}
	return report, nil
}
