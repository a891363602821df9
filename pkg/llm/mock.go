package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	CompleteFunc func(ctx context.Context, systemMessage, prompt string) (string, error)
	Calls        int
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Complete(ctx context.Context, systemMessage, prompt string) (string, error) {
	m.Calls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemMessage, prompt)
	}
	return "", nil
}

func (m *MockClient) Provider() string { return "mock" }
