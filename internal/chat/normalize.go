// internal/chat/normalize.go
package chat

import (
	"strings"
	"time"
)

// Normalize converts a raw provider payload into a ProviderResponse.
// The backend's payload shape is not fixed, so each field is resolved
// through an enumerated fallback order:
//
//	provider:    provider, modelId, model_id
//	name:        aiName, ai_name, modelName, model_name, then provider
//	content:     content, response, text
//	model:       model, model_id, modelId
//	timestamp:   timestamp (RFC3339 string or unix milliseconds), else now
//	performance: performance, usage.performance
//	tokens:      tokens, usage
//
// Missing fields yield zero values; Normalize never fails.
func Normalize(raw map[string]any, now time.Time) ProviderResponse {
	r := ProviderResponse{
		Provider:  stringField(raw, "provider", "modelId", "model_id"),
		Content:   stringField(raw, "content", "response", "text"),
		Model:     stringField(raw, "model", "model_id", "modelId"),
		Timestamp: timeField(raw, now),
		Complete:  true,
	}

	r.Name = stringField(raw, "aiName", "ai_name", "modelName", "model_name")
	if r.Name == "" {
		r.Name = r.Provider
	}

	if perf, ok := mapField(raw, "performance"); ok {
		r.Performance = normalizePerformance(perf)
	} else if usage, ok := mapField(raw, "usage"); ok {
		if perf, ok := mapField(usage, "performance"); ok {
			r.Performance = normalizePerformance(perf)
		}
	}

	if tokens, ok := mapField(raw, "tokens"); ok {
		r.Tokens = normalizeTokens(tokens)
	} else if usage, ok := mapField(raw, "usage"); ok {
		r.Tokens = normalizeTokens(usage)
	}

	return r
}

// DisplayName resolves the rendered provider label. OpenRouter entries get
// the short model name so distinct models stay distinguishable.
func DisplayName(provider, name string) string {
	if name != "" && strings.Contains(name, "-") {
		return name
	}
	if strings.HasPrefix(provider, "openrouter:") {
		modelID := strings.SplitN(provider, ":", 2)[1]
		parts := strings.Split(modelID, "/")
		return "OpenRouter-" + parts[len(parts)-1]
	}
	if name != "" {
		return name
	}
	return provider
}

func normalizePerformance(m map[string]any) *Performance {
	p := &Performance{
		FirstTokenTime:  numField(m, "first_token_time", "first_token_latency", "firstTokenTime"),
		ResponseTime:    numField(m, "response_time", "total_response_time", "responseTime"),
		TokensPerSecond: numField(m, "tokens_per_second", "tokensPerSecond"),
	}
	if *p == (Performance{}) {
		return nil
	}
	return p
}

func normalizeTokens(m map[string]any) *TokenUsage {
	t := &TokenUsage{
		Input:      int(numField(m, "input", "input_tokens", "prompt_tokens")),
		Output:     int(numField(m, "output", "output_tokens", "completion_tokens")),
		Cache:      int(numField(m, "cache", "cached", "cache_tokens")),
		Total:      int(numField(m, "total", "total_tokens")),
		InputCost:  numField(m, "input_cost"),
		OutputCost: numField(m, "output_cost"),
		CacheCost:  numField(m, "cache_cost"),
		TotalCost:  numField(m, "total_cost", "total_cost_cny"),
	}
	if *t == (TokenUsage{}) {
		return nil
	}
	return t
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func numField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return n
			case int:
				return float64(n)
			case int64:
				return float64(n)
			}
		}
	}
	return 0
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	if !ok || len(sub) == 0 {
		return nil, false
	}
	return sub, true
}

func timeField(m map[string]any, now time.Time) time.Time {
	v, ok := m["timestamp"]
	if !ok {
		return now
	}
	switch ts := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t
		}
	case float64:
		// Unix milliseconds
		return time.UnixMilli(int64(ts))
	}
	return now
}
