package gateway

import (
	"net/http"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
)

type usageBody struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type routingBody struct {
	RequestID string  `json:"request_id"`
	Provider  string  `json:"provider"`
	Owner     string  `json:"owner"`
	CostUSD   float64 `json:"cost_usd"`
	Attempts  int     `json:"attempts"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      messageBody `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type messageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   usageBody    `json:"usage"`
	Routing routingBody  `json:"routing"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Object  string          `json:"object"`
	Model   string          `json:"model"`
	Data    []embeddingData `json:"data"`
	Usage   usageBody       `json:"usage"`
	Routing routingBody     `json:"routing"`
}

type imageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

type imageResponse struct {
	Data    []imageData `json:"data"`
	Routing routingBody `json:"routing"`
}

func routingFor(res *router.Result) routingBody {
	return routingBody{
		RequestID: res.RequestID,
		Provider:  res.Provider,
		Owner:     string(res.Owner),
		CostUSD:   res.Cost.TotalCost,
		Attempts:  len(res.Attempts),
	}
}

func usageFor(res *router.Result) usageBody {
	return usageBody{
		PromptTokens:     res.Usage.InputTokens,
		CompletionTokens: res.Usage.OutputTokens,
		TotalTokens:      res.Usage.InputTokens + res.Usage.OutputTokens,
	}
}

func writeChat(w http.ResponseWriter, res *router.Result) {
	finish := res.Response.FinishReason
	if finish == "" {
		finish = "stop"
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ID:     res.Response.ID,
		Object: "chat.completion",
		Model:  res.Model,
		Choices: []chatChoice{{
			Message:      messageBody{Role: "assistant", Content: res.Response.Content},
			FinishReason: finish,
		}},
		Usage:   usageFor(res),
		Routing: routingFor(res),
	})
}

func writeEmbedding(w http.ResponseWriter, res *router.Result) {
	data := make([]embeddingData, len(res.Response.Embeddings))
	for i, e := range res.Response.Embeddings {
		data[i] = embeddingData{Object: "embedding", Index: i, Embedding: e}
	}
	writeJSON(w, http.StatusOK, embeddingResponse{
		Object:  "list",
		Model:   res.Model,
		Data:    data,
		Usage:   usageFor(res),
		Routing: routingFor(res),
	})
}

func writeImage(w http.ResponseWriter, res *router.Result) {
	data := make([]imageData, len(res.Response.Images))
	for i, img := range res.Response.Images {
		data[i] = imageData{URL: img.URL, B64JSON: img.B64JSON}
	}
	writeJSON(w, http.StatusOK, imageResponse{Data: data, Routing: routingFor(res)})
}
