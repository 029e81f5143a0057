package llamaclient

import "scoringd/pkg/types"

// Backing server endpoints.
const (
	chatCompletionsPath = "/v1/chat/completions"
	completionsPath     = "/v1/completions"
	tokenizePath        = "/extras/tokenize"
)

const userAgent = "llama-cpp client"

// endpointFor maps a task to its backing-server path and the body key that
// carries the query.
func endpointFor(task types.TaskType) (path, queryKey string, ok bool) {
	switch task {
	case types.TaskConversational:
		return chatCompletionsPath, "messages", true
	case types.TaskTextGeneration:
		return completionsPath, "prompt", true
	}
	return "", "", false
}

// buildBody produces {queryKey: query, ...params, "stream": false}. Params may
// override the query key; stream is always forced off.
func buildBody(queryKey string, query any, params map[string]any) map[string]any {
	body := make(map[string]any, len(params)+2)
	body[queryKey] = query
	for k, v := range params {
		body[k] = v
	}
	body["stream"] = false
	return body
}

// completionResponse is the subset of the OpenAI-style reply that is consumed.
// Chat replies carry choices[0].message.content; completions replies may carry
// choices[0].text instead.
type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
}

// generatedText extracts the first choice's text.
func (r completionResponse) generatedText() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	c := r.Choices[0]
	if c.Message != nil && c.Message.Content != nil {
		return *c.Message.Content, true
	}
	if c.Text != nil {
		return *c.Text, true
	}
	return "", false
}

type tokenizeRequest struct {
	Input string `json:"input"`
}

type tokenizeResponse struct {
	Tokens []any `json:"tokens"`
}
