package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouterRoutes(t *testing.T) {
	ms := &mockStore{}
	router := NewRouter(NewHandler(ms, "test", ""), []string{"*"})

	srv := httptest.NewServer(router)
	defer srv.Close()

	cases := []struct {
		path string
		want int
	}{
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/stats", http.StatusOK},
		{"/api/v1/history", http.StatusOK},
		{"/api/v1/chapters/1001/progress", http.StatusOK},
		{"/api/v1/chapters/abc/progress", http.StatusBadRequest},
		{"/api/v1/bookmarks?user_id=u1", http.StatusOK},
		{"/api/v1/nope", http.StatusNotFound},
	}

	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("GET %s: status = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestRouterChapterParam(t *testing.T) {
	ms := &mockStore{}
	router := NewRouter(NewHandler(ms, "test", ""), []string{"*"})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/chapters/3012/progress")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if ms.chapterRequested != 3012 {
		t.Errorf("chapter id = %d, want 3012", ms.chapterRequested)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(NewHandler(&mockStore{}, "test", ""), []string{"http://localhost:3000"})

	srv := httptest.NewServer(router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/stats", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q, want http://localhost:3000", got)
	}
}
