package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"magnifiq/internal/config"
)

// stubProvider is a minimal chat-capable driver used by manager tests
type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string                  { return s.name }
func (s *stubProvider) SupportsChatCompletion() bool  { return true }
func (s *stubProvider) SupportsImageGeneration() bool { return false }

func (s *stubProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: "ok", Model: req.Model}, nil
}

func (s *stubProvider) GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*ImageGenerationResponse, error) {
	return nil, &ConfigError{Key: s.name, Reason: "driver does not support image generation"}
}

func testManager(t *testing.T) *Manager {
	t.Helper()

	var constructions int32
	Register("stub", func(cfg config.ProviderConfig) (Provider, error) {
		atomic.AddInt32(&constructions, 1)
		return &stubProvider{name: "stub"}, nil
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, "stub")
		registryMu.Unlock()
	})

	return NewManager(config.AIConfig{
		DefaultDriver: "stub",
		Features: map[string]config.FeatureConfig{
			"chat": {Driver: "stub", Model: "stub-large"},
		},
		Providers: map[string]config.ProviderConfig{},
	})
}

func TestManagerForFeature(t *testing.T) {
	m := testManager(t)

	provider, model, err := m.ForFeature("chat")
	if err != nil {
		t.Fatalf("ForFeature(chat) failed: %v", err)
	}
	if provider.Name() != "stub" {
		t.Errorf("provider = %q, expected stub", provider.Name())
	}
	if model != "stub-large" {
		t.Errorf("model = %q, expected stub-large", model)
	}
}

func TestManagerUnconfiguredFeatureFailsFast(t *testing.T) {
	m := testManager(t)

	_, _, err := m.ForFeature("image_generation")
	if err == nil {
		t.Fatal("unconfigured feature resolved without error")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("error is %T, expected *ConfigError", err)
	}
}

func TestManagerDriverMemoization(t *testing.T) {
	m := testManager(t)

	first, err := m.Driver("stub")
	if err != nil {
		t.Fatalf("Driver(stub) failed: %v", err)
	}
	second, err := m.Driver("stub")
	if err != nil {
		t.Fatalf("second Driver(stub) failed: %v", err)
	}
	if first != second {
		t.Error("driver instances differ; expected memoized instance")
	}
}

func TestManagerDefaultDriver(t *testing.T) {
	m := testManager(t)

	provider, err := m.Driver("")
	if err != nil {
		t.Fatalf("Driver(\"\") failed: %v", err)
	}
	if provider.Name() != "stub" {
		t.Errorf("default driver = %q, expected stub", provider.Name())
	}
}

func TestManagerUnknownDriver(t *testing.T) {
	m := testManager(t)

	if _, err := m.Driver("missing"); err == nil {
		t.Error("unknown driver resolved without error")
	}
}

func TestManagerProvenanceLookups(t *testing.T) {
	m := testManager(t)

	model, err := m.ModelForFeature("chat")
	if err != nil || model != "stub-large" {
		t.Errorf("ModelForFeature(chat) = %q, %v", model, err)
	}
	driver, err := m.DriverForFeature("chat")
	if err != nil || driver != "stub" {
		t.Errorf("DriverForFeature(chat) = %q, %v", driver, err)
	}
	if _, err := m.ModelForFeature("vision"); err == nil {
		t.Error("ModelForFeature on unconfigured feature succeeded")
	}
}
