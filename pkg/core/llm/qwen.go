package llm

// NewQwenProvider returns a provider for Qwen through DashScope's
// OpenAI-compatible mode.
// See: https://help.aliyun.com/zh/model-studio/compatibility-of-openai-with-dashscope
func NewQwenProvider() *ChatCompletionsProvider {
	return &ChatCompletionsProvider{
		Name:         "qwen",
		URL:          "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
		DefaultModel: "qwen-max",
		APIKeyEnv:    []string{"DASHSCOPE_API_KEY", "QWEN_API_KEY"},
	}
}
