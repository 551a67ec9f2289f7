package knowledge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStoreSendsPlainText(t *testing.T) {
	var gotPath, gotCT, gotBody, gotAuthor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotAuthor = r.URL.Query().Get("author_ref")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"message":"queued for processing"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.Store(context.Background(), "Maya likes orchids.", "User (user_id: 9)", "")
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/store" || gotCT != "text/plain" {
		t.Errorf("path=%q content-type=%q", gotPath, gotCT)
	}
	if gotBody != "Maya likes orchids." {
		t.Errorf("body = %q", gotBody)
	}
	if gotAuthor != "User (user_id: 9)" {
		t.Errorf("author_ref = %q", gotAuthor)
	}
	if reply != "queued for processing" {
		t.Errorf("reply = %q", reply)
	}
}

func TestSearchQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodGet {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("query") != "orchids" {
			t.Errorf("query = %q", r.URL.Query().Get("query"))
		}
		w.Write([]byte(`{"result":"Maya likes orchids."}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.Search(context.Background(), "orchids", "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Maya likes orchids." {
		t.Errorf("out = %q", out)
	}
}

func TestControlEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/control/info" {
			w.Write([]byte(`{"is_processing_active":false,"queued_items":4}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	if err := c.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	st, err := c.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.IsProcessingActive || st.QueuedItems != 4 {
		t.Errorf("status = %+v", st)
	}
	if err := c.ProcessQueue(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"POST /control/pause", "POST /control/resume", "GET /control/info", "POST /control/process"}
	if len(paths) != len(want) {
		t.Fatalf("calls = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestDisabledClient(t *testing.T) {
	c := New("")
	if c.Enabled() {
		t.Fatal("empty URL must disable client")
	}
	if _, err := c.Store(context.Background(), "x", "", ""); err != ErrDisabled {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Search(context.Background(), "q", ""); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}
