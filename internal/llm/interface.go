package llm

import "context"

// APIClient is the contract the orchestration layer consumes. Client is the
// production implementation; tests substitute fakes.
type APIClient interface {
	// ChatCompletion performs a cached, breaker-gated chat completion.
	ChatCompletion(ctx context.Context, messages []ChatMessage, opts *ChatOptions) (*ChatResponse, error)
	// ListModels returns the models advertised by the endpoint.
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
	// HealthCheck reduces a minimal chat request to pure success/failure.
	HealthCheck(ctx context.Context) bool
	// TestConnection times a minimal chat request and reports endpoint
	// reachability separately from model availability.
	TestConnection(ctx context.Context) *ConnectionStatus
	// ClearCache empties the in-memory cache tier only.
	ClearCache(ctx context.Context)
}
