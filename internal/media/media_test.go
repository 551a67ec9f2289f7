package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateB64(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "a cat" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(raw)}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	artifacts := c.Generate(context.Background(), "a cat")
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d", len(artifacts))
	}
	if string(artifacts[0].Data) != string(raw) {
		t.Errorf("data = %v", artifacts[0].Data)
	}
	if artifacts[0].Name != "gen_image_0.png" {
		t.Errorf("name = %q", artifacts[0].Name)
	}
}

func TestGenerateSendsImageCount(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("png"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.N != 2 {
			t.Errorf("n = %d, want 2", req.N)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": raw}, {"b64_json": raw}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithImageCount(2))
	if artifacts := c.Generate(context.Background(), "p"); len(artifacts) != 2 {
		t.Errorf("artifacts = %d, want 2", len(artifacts))
	}
}

func TestWithImageCountIgnoresNonPositive(t *testing.T) {
	c := New("http://unused.example", WithImageCount(0))
	if c.imageCount != 1 {
		t.Errorf("imageCount = %d, want 1", c.imageCount)
	}
}

func TestGenerateDownloadsURL(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/images/generations":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{{"url": srvURL + "/img.png"}},
			})
		case "/img.png":
			w.Write([]byte("pngbytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := New(srv.URL)
	artifacts := c.Generate(context.Background(), "p")
	if len(artifacts) != 1 || string(artifacts[0].Data) != "pngbytes" {
		t.Errorf("artifacts = %+v", artifacts)
	}
}

func TestGenerateBackendDownReturnsEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "jammed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if artifacts := c.Generate(context.Background(), "p"); artifacts != nil {
		t.Errorf("expected no artifacts, got %d", len(artifacts))
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "vision-model" {
			t.Errorf("model = %v", req["model"])
		}
		msgs := req["messages"].([]any)
		user := msgs[1].(map[string]any)
		parts := user["content"].([]any)
		img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		if !strings.HasPrefix(img, "data:image/png;base64,") {
			t.Errorf("image url = %q", img)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "a sleeping cat"}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithVisionModel("vision-model"))
	desc := c.Analyze(context.Background(), []byte("img"), "image/png")
	if desc != "a sleeping cat" {
		t.Errorf("desc = %q", desc)
	}
}

func TestAnalyzeWithoutVisionModel(t *testing.T) {
	c := New("http://unused.example")
	if desc := c.Analyze(context.Background(), []byte("img"), ""); desc != "" {
		t.Errorf("expected empty description, got %q", desc)
	}
}
