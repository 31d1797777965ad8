package llm

// DefaultModel is used when a request does not name a model.
const DefaultModel = "gpt-4-turbo"

// Models maps the short model names clients send to the fully qualified
// OpenRouter identifiers.
var Models = map[string]string{
	// OpenAI
	"gpt-4-turbo":   "openai/gpt-4-turbo",
	"gpt-4":         "openai/gpt-4",
	"gpt-3.5-turbo": "openai/gpt-3.5-turbo",

	// Anthropic
	"claude-3-opus":   "anthropic/claude-3-opus",
	"claude-3-sonnet": "anthropic/claude-3-sonnet",
	"claude-3-haiku":  "anthropic/claude-3-haiku",

	// Google
	"gemini-pro":        "google/gemini-pro",
	"gemini-pro-vision": "google/gemini-pro-vision",

	// Meta
	"llama-2-70b": "meta-llama/llama-2-70b-chat",
	"llama-3-70b": "meta-llama/llama-3-70b-instruct",

	// Mistral
	"mistral-7b":   "mistralai/mistral-7b-instruct",
	"mixtral-8x7b": "mistralai/mixtral-8x7b-instruct",

	// Other
	"perplexity-70b": "perplexity/llama-3-sonar-large-32k-online",
	"cohere-command": "cohere/command",
}

// ModelInfo describes a model for catalog listings.
type ModelInfo struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Description   string   `json:"description"`
	ContextLength int      `json:"contextLength"`
	Capabilities  []string `json:"capabilities"`
}

// Catalog is the subset of Models surfaced with display metadata.
var Catalog = map[string]ModelInfo{
	"gpt-4-turbo": {
		Name:          "GPT-4 Turbo",
		Provider:      "OpenAI",
		Description:   "Most capable GPT-4 model with 128k context",
		ContextLength: 128000,
		Capabilities:  []string{"text", "vision", "function-calling"},
	},
	"gpt-4": {
		Name:          "GPT-4",
		Provider:      "OpenAI",
		Description:   "High-intelligence flagship model",
		ContextLength: 8192,
		Capabilities:  []string{"text", "function-calling"},
	},
	"claude-3-opus": {
		Name:          "Claude 3 Opus",
		Provider:      "Anthropic",
		Description:   "Most powerful Claude model",
		ContextLength: 200000,
		Capabilities:  []string{"text", "vision", "analysis"},
	},
	"claude-3-sonnet": {
		Name:          "Claude 3 Sonnet",
		Provider:      "Anthropic",
		Description:   "Balanced performance and speed",
		ContextLength: 200000,
		Capabilities:  []string{"text", "vision", "analysis"},
	},
	"gemini-pro": {
		Name:          "Gemini Pro",
		Provider:      "Google",
		Description:   "Google's most capable model",
		ContextLength: 32768,
		Capabilities:  []string{"text", "reasoning"},
	},
	"llama-3-70b": {
		Name:          "Llama 3 70B",
		Provider:      "Meta",
		Description:   "Open-source flagship model",
		ContextLength: 8192,
		Capabilities:  []string{"text", "reasoning"},
	},
	"mixtral-8x7b": {
		Name:          "Mixtral 8x7B",
		Provider:      "Mistral AI",
		Description:   "High-quality mixture of experts",
		ContextLength: 32768,
		Capabilities:  []string{"text", "multilingual"},
	},
}

// ResolveModel returns the OpenRouter identifier for a short model name,
// falling back to the default for unknown names.
func ResolveModel(model string) string {
	if full, ok := Models[model]; ok {
		return full
	}
	return Models[DefaultModel]
}
