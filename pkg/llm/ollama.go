package llm

// OllamaProvider speaks the OpenAI-compatible API that Ollama exposes, so it
// is a thin wrapper with a local default endpoint and no API key.
type OllamaProvider struct {
	*OpenAIProvider
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:11434/v1"
	}
	return &OllamaProvider{OpenAIProvider: NewOpenAIProvider(cfg)}
}
