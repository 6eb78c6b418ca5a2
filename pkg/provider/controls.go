package provider

// Controls carries vendor-neutral sampling parameters. Nil fields mean
// "provider default"; adapters omit them from the native request rather than
// sending zero values.
type Controls struct {
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
}

// Merge overlays non-nil fields of other onto a copy of c. Used to combine
// engine defaults with per-turn overrides.
func (c Controls) Merge(other Controls) Controls {
	out := c
	if other.Temperature != nil {
		out.Temperature = other.Temperature
	}
	if other.TopP != nil {
		out.TopP = other.TopP
	}
	if other.MaxTokens != nil {
		out.MaxTokens = other.MaxTokens
	}
	if len(other.StopSequences) > 0 {
		out.StopSequences = other.StopSequences
	}
	if other.FrequencyPenalty != nil {
		out.FrequencyPenalty = other.FrequencyPenalty
	}
	if other.PresencePenalty != nil {
		out.PresencePenalty = other.PresencePenalty
	}
	return out
}

// Float64 returns a pointer to v. Convenience for building Controls literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
