package provider

// TokenLimits bounds a model's input and output.
type TokenLimits struct {
	MaxInput         int `json:"max_input"`
	MaxOutput        int `json:"max_output"`
	RecommendedChunk int `json:"recommended_chunk"`
}

var supported = map[string][]string{
	OpenAI: {"gpt-4o", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
	Gemini: {"gemini-1.5-pro-latest", "gemini-1.5-flash-latest", "gemini-1.0-pro"},
}

var limits = map[string]TokenLimits{
	"gpt-4o":                  {MaxInput: 128000, MaxOutput: 16384, RecommendedChunk: 8000},
	"gpt-4-turbo":             {MaxInput: 128000, MaxOutput: 4096, RecommendedChunk: 8000},
	"gpt-4":                   {MaxInput: 8192, MaxOutput: 8192, RecommendedChunk: 3000},
	"gpt-3.5-turbo":           {MaxInput: 16385, MaxOutput: 4096, RecommendedChunk: 4000},
	"gemini-1.5-pro-latest":   {MaxInput: 2097152, MaxOutput: 8192, RecommendedChunk: 10000},
	"gemini-1.5-flash-latest": {MaxInput: 1048576, MaxOutput: 8192, RecommendedChunk: 10000},
	"gemini-1.0-pro":          {MaxInput: 30720, MaxOutput: 2048, RecommendedChunk: 4000},
}

// SupportedModels returns a copy of the provider -> model catalog.
func SupportedModels() map[string][]string {
	out := make(map[string][]string, len(supported))
	for p, models := range supported {
		out[p] = append([]string(nil), models...)
	}
	return out
}

func IsSupported(provider, model string) bool {
	for _, m := range supported[provider] {
		if m == model {
			return true
		}
	}
	return false
}

func Limits(model string) (TokenLimits, bool) {
	l, ok := limits[model]
	return l, ok
}
