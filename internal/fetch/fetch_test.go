package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Orchid Care</title><script>evil()</script></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Watering orchids</h1>
<p>Orchids prefer infrequent, thorough watering.</p>
<script>track()</script>
<style>p { color: red }</style>
</article>
<footer>Copyright</footer>
</body>
</html>`

func TestFetchExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := New(srv.Client())
	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if page.Title != "Orchid Care" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.Text, "infrequent, thorough watering") {
		t.Errorf("text missing article body: %q", page.Text)
	}
	for _, gone := range []string{"evil()", "track()", "color: red", "Home | About", "Copyright"} {
		if strings.Contains(page.Text, gone) {
			t.Errorf("boilerplate %q leaked into text", gone)
		}
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  just text  "))
	}))
	defer srv.Close()

	f := New(srv.Client())
	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if page.Text != "just text" {
		t.Errorf("text = %q", page.Text)
	}
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(srv.Client())
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := New(nil)
	if _, err := f.Fetch(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestChunks(t *testing.T) {
	if Chunks("") != nil {
		t.Error("empty text should yield nil")
	}

	short := Chunks("abc")
	if len(short) != 1 || short[0] != "abc" {
		t.Errorf("short = %v", short)
	}

	text := strings.Repeat("x", ChunkSize+100)
	chunks := Chunks(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != ChunkSize {
		t.Errorf("first chunk len = %d", len(chunks[0]))
	}
	// Second chunk starts one step in, overlapping the first.
	if !strings.HasPrefix(text[ChunkSize-ChunkOverlap:], chunks[1]) {
		t.Error("second chunk misaligned")
	}
}
