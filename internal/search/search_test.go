package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gendev/gen-agent/internal/fetch"
	"github.com/gendev/gen-agent/internal/llm"
)

func searxngServer(t *testing.T, results []map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
}

func TestSearcherURLs(t *testing.T) {
	srv := searxngServer(t, []map[string]string{
		{"url": "https://a.example", "content": "first"},
		{"url": "", "content": "no url, dropped"},
		{"url": "https://b.example", "content": "second"},
	})
	defer srv.Close()

	s := NewSearcher(srv.URL)
	urls, err := s.URLs(context.Background(), "orchids")
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[0] != "https://a.example" || urls[1] != "https://b.example" {
		t.Errorf("urls = %v", urls)
	}
}

func TestSearcherMaxResults(t *testing.T) {
	var results []map[string]string
	for i := 0; i < 15; i++ {
		results = append(results, map[string]string{"url": "https://x.example", "content": "c"})
	}
	srv := searxngServer(t, results)
	defer srv.Close()

	s := NewSearcher(srv.URL, WithMaxResults(4))
	urls, err := s.URLs(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 4 {
		t.Errorf("len = %d", len(urls))
	}
}

func TestRerankerReorders(t *testing.T) {
	rr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req rerankRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "rerank-model" || len(req.Documents) != 3 {
			t.Errorf("req = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]int{{"index": 2}, {"index": 0}, {"index": 1}},
		})
	}))
	defer rr.Close()

	r := NewReranker("rerank-model", rr.URL)
	in := []Result{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	out := r.Rerank(context.Background(), "q", in)
	if len(out) != 3 || out[0].URL != "c" || out[1].URL != "a" || out[2].URL != "b" {
		t.Errorf("out = %v", out)
	}
}

func TestRerankerFailover(t *testing.T) {
	primaryCalled := false
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalled = true
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]int{{"index": 1}, {"index": 0}}})
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer secondary.Close()

	r := NewReranker("m", primary.URL, WithSecondaryURL(secondary.URL))
	out := r.Rerank(context.Background(), "q", []Result{{URL: "a"}, {URL: "b"}})
	if !primaryCalled {
		t.Fatal("expected failover to primary")
	}
	if out[0].URL != "b" {
		t.Errorf("out = %v", out)
	}
}

func TestRerankerTotalFailureKeepsOrder(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer dead.Close()

	r := NewReranker("m", dead.URL)
	in := []Result{{URL: "a"}, {URL: "b"}}
	out := r.Rerank(context.Background(), "q", in)
	if len(out) != 2 || out[0].URL != "a" {
		t.Errorf("expected original order, got %v", out)
	}
}

func TestRerankerEmptyResultsKeepsOrder(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]int{}})
	}))
	defer empty.Close()

	r := NewReranker("m", empty.URL)
	in := []Result{{URL: "a"}, {URL: "b"}}
	out := r.Rerank(context.Background(), "q", in)
	if len(out) != 2 || out[0].URL != "a" || out[1].URL != "b" {
		t.Errorf("expected original order, got %v", out)
	}
}

func TestRerankerNoModelPassthrough(t *testing.T) {
	r := NewReranker("", "http://unused.example")
	in := []Result{{URL: "a"}}
	out := r.Rerank(context.Background(), "q", in)
	if len(out) != 1 || out[0].URL != "a" {
		t.Errorf("out = %v", out)
	}
}

func llmServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
}

func TestExtractFacts(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Orchids bloom yearly. They like shade.</p></body></html>"))
	}))
	defer page.Close()

	model := llmServer(t, "```json\n[\"Orchids bloom yearly.\", \"Orchids like shade.\"]\n```")
	defer model.Close()

	e := NewExtractor(fetch.New(nil), llm.New(model.URL, llm.WithModel("m")), nil)
	facts := e.ExtractFacts(context.Background(), page.URL, "orchid care")
	if len(facts) != 2 || facts[0] != "Orchids bloom yearly." {
		t.Errorf("facts = %v", facts)
	}
}

func TestExtractFactsBadURL(t *testing.T) {
	model := llmServer(t, "[]")
	defer model.Close()

	e := NewExtractor(fetch.New(nil), llm.New(model.URL, llm.WithModel("m")), nil)
	if facts := e.ExtractFacts(context.Background(), "", "q"); facts != nil {
		t.Errorf("expected nil for bad url, got %v", facts)
	}
}

func TestFilterRelevance(t *testing.T) {
	model := llmServer(t, "```json\n{\"summary\": \"Orchids need shade and yearly blooming care.\", \"relevant_facts\": [\"Orchids like shade.\"]}\n```")
	defer model.Close()

	e := NewExtractor(fetch.New(nil), llm.New(model.URL, llm.WithModel("m")), nil)
	summary, relevant := e.FilterRelevance(context.Background(), "orchid care",
		[]string{"Orchids like shade.", "Unrelated fact."})
	if summary != "Orchids need shade and yearly blooming care." {
		t.Errorf("summary = %q", summary)
	}
	if len(relevant) != 1 || relevant[0] != "Orchids like shade." {
		t.Errorf("relevant = %v", relevant)
	}
}

func TestFilterRelevanceNoFacts(t *testing.T) {
	e := NewExtractor(fetch.New(nil), nil, nil)
	summary, relevant := e.FilterRelevance(context.Background(), "q", nil)
	if summary != "No facts were extracted from the source." || relevant != nil {
		t.Errorf("got %q, %v", summary, relevant)
	}
}

func TestFilterRelevanceUnparseable(t *testing.T) {
	model := llmServer(t, "this is not json at all")
	defer model.Close()

	e := NewExtractor(fetch.New(nil), llm.New(model.URL, llm.WithModel("m")), nil)
	facts := []string{"f1", "f2", "f3", "f4"}
	summary, relevant := e.FilterRelevance(context.Background(), "q", facts)
	if summary == "" || len(relevant) != 3 {
		t.Errorf("got %q, %v", summary, relevant)
	}
}
