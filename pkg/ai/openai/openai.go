package openai

import (
	"sync"

	"github.com/graphora-ai/graphora/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Client talks to OpenAI-compatible endpoints for completions and
// embeddings. Separate underlying clients allow the two capabilities to be
// served by different hosts.
//
// Create it with NewClient.
type Client struct {
	embeddingModel  string
	completionModel string

	chatURL      string
	embeddingURL string

	timeoutMin int64

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewClientParams contains configuration for creating a Client.
//
// EmbeddingModel and CompletionModel select the models used for the two
// capabilities. MaxConcurrentRequests bounds in-flight API calls; TimeoutMin
// is the per-request timeout in minutes.
type NewClientParams struct {
	EmbeddingModel  string
	CompletionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	TimeoutMin            int64
}

// NewClient creates a Client configured with the provided parameters.
func NewClient(params NewClientParams) *Client {
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	return &Client{
		embeddingModel:  params.EmbeddingModel,
		completionModel: params.CompletionModel,

		chatURL:      params.ChatURL,
		embeddingURL: params.EmbeddingURL,

		timeoutMin: timeoutMin,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
