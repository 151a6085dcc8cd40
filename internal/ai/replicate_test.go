package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"magnifiq/internal/config"
)

func newTestReplicate(t *testing.T, baseURL string) *replicateProvider {
	t.Helper()
	provider, err := newReplicateProvider(config.ProviderConfig{APIKey: "test", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("newReplicateProvider failed: %v", err)
	}
	rp := provider.(*replicateProvider)
	rp.pollingInterval = 5 * time.Millisecond
	rp.pollingTimeout = 250 * time.Millisecond
	return rp
}

func TestReplicateGenerateImagePollsUntilSucceeded(t *testing.T) {
	var polls int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/models/owner/model/predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "pred-1", "status": "starting"})
	})
	mux.HandleFunc("/predictions/pred-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		if n < 3 {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "pred-1", "status": "processing"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-1",
			"status": "succeeded",
			"output": server.URL + "/image",
		})
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Write(testPNG)
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	provider := newTestReplicate(t, server.URL)
	resp, err := provider.GenerateImage(context.Background(), &ImageGenerationRequest{
		Prompt: "a lighthouse at dusk",
		Model:  "owner/model",
		Extras: map[string]interface{}{"output_format": "png"},
	})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if got := atomic.LoadInt32(&polls); got < 3 {
		t.Errorf("expected at least 3 polls, got %d", got)
	}
	if len(resp.Images) != 1 {
		t.Fatalf("expected one image, got %d", len(resp.Images))
	}
	if resp.Images[0].MimeType != "image/png" {
		t.Errorf("mime = %q", resp.Images[0].MimeType)
	}
}

func TestReplicatePredictionStatusNormalizesOutput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions/single", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "single", "status": "succeeded", "output": "https://x/img.png"})
	})
	mux.HandleFunc("/predictions/many", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "many", "status": "succeeded", "output": []string{"a", "b"}})
	})
	mux.HandleFunc("/predictions/failed", func(w http.ResponseWriter, r *http.Request) {
		msg := "NSFW content detected"
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "failed", "status": "failed", "error": msg})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	provider := newTestReplicate(t, server.URL)

	single, err := provider.PredictionStatus(context.Background(), "single")
	if err != nil {
		t.Fatalf("PredictionStatus(single) failed: %v", err)
	}
	if len(single.Output) != 1 || single.Output[0] != "https://x/img.png" {
		t.Errorf("single output = %v", single.Output)
	}

	many, err := provider.PredictionStatus(context.Background(), "many")
	if err != nil {
		t.Fatalf("PredictionStatus(many) failed: %v", err)
	}
	if len(many.Output) != 2 {
		t.Errorf("many output = %v", many.Output)
	}

	failed, err := provider.PredictionStatus(context.Background(), "failed")
	if err != nil {
		t.Fatalf("PredictionStatus(failed) failed: %v", err)
	}
	if failed.Status != "failed" || failed.Error == "" {
		t.Errorf("failed status = %+v", failed)
	}
}

func TestReplicatePollingTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "stuck", "status": "starting"})
	})
	mux.HandleFunc("/predictions/stuck", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "stuck", "status": "processing"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	provider := newTestReplicate(t, server.URL)
	provider.pollingTimeout = 20 * time.Millisecond

	_, err := provider.GenerateImage(context.Background(), &ImageGenerationRequest{Prompt: "slow"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestReplicateChatUnsupported(t *testing.T) {
	provider := newTestReplicate(t, "http://localhost")
	if _, err := provider.Chat(context.Background(), &ChatRequest{Messages: []ChatMessage{UserMessage("hi")}}); err == nil {
		t.Error("chat on replicate driver succeeded, expected config error")
	}
}
