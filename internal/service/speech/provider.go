package speech

import (
	"context"
	"fmt"

	"ascend-interview-agent/internal/service/stt"
	"ascend-interview-agent/internal/service/stt/google"
	"ascend-interview-agent/internal/service/stt/mock"
)

// Recognizer providers.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
)

// NewAdapterFactory returns the factory for a provider name. The google
// provider dials the Speech API when recording first starts.
func NewAdapterFactory(provider string, cfg google.Config) (AdapterFactory, error) {
	switch provider {
	case "", ProviderMock:
		return func(ctx context.Context) (stt.Adapter, error) {
			return mock.New(), nil
		}, nil
	case ProviderGoogle:
		return func(ctx context.Context) (stt.Adapter, error) {
			a, err := google.New(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("google speech client: %w", err)
			}
			return a, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", provider)
	}
}
