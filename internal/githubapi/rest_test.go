package githubapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newRESTTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/alice", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"login":"alice","name":"Alice Liddell","avatar_url":"https://avatars.example/alice","created_at":"2020-01-02T03:04:05Z"}`)
	})
	mux.HandleFunc("GET /search/commits", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "author:alice" {
			http.Error(w, "unexpected query "+got, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"total_count":321,"incomplete_results":false,"items":[]}`)
	})
	mux.HandleFunc("GET /repos/alice/card/traffic/views", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("per"); got != "week" {
			http.Error(w, "unexpected per "+got, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"count":42,"uniques":7,"views":[]}`)
	})
	mux.HandleFunc("GET /repos/alice/private/traffic/views", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Must have push access to repository"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newRESTTestClient(t *testing.T, server *httptest.Server) *RESTClient {
	t.Helper()
	client, err := NewGitHubRESTClient(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("NewGitHubRESTClient() unexpected error: %v", err)
	}
	return client
}

func TestRESTClientGetUserProfile(t *testing.T) {
	t.Parallel()

	client := newRESTTestClient(t, newRESTTestServer(t))
	got, err := client.GetUserProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserProfile() unexpected error: %v", err)
	}

	want := UserProfile{
		Login:     "alice",
		Name:      "Alice Liddell",
		AvatarURL: "https://avatars.example/alice",
		CreatedAt: time.Date(2020, time.January, 2, 3, 4, 5, 0, time.UTC),
	}
	if got.Login != want.Login || got.Name != want.Name || got.AvatarURL != want.AvatarURL || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("GetUserProfile() = %+v, want %+v", got, want)
	}

	if _, err := client.GetUserProfile(context.Background(), "nobody"); err == nil {
		t.Fatalf("GetUserProfile(nobody) expected error, got nil")
	}
	if _, err := client.GetUserProfile(context.Background(), ""); err == nil {
		t.Fatalf("GetUserProfile(blank) expected error, got nil")
	}
}

func TestRESTClientGetTotalCommits(t *testing.T) {
	t.Parallel()

	client := newRESTTestClient(t, newRESTTestServer(t))
	got, err := client.GetTotalCommits(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetTotalCommits() unexpected error: %v", err)
	}
	if got != 321 {
		t.Fatalf("GetTotalCommits() = %d, want 321", got)
	}
}

func TestRESTClientGetWeeklyViews(t *testing.T) {
	t.Parallel()

	client := newRESTTestClient(t, newRESTTestServer(t))

	got, err := client.GetWeeklyViews(context.Background(), "alice", "card")
	if err != nil {
		t.Fatalf("GetWeeklyViews() unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("GetWeeklyViews() = %d, want 42", got)
	}

	_, err = client.GetWeeklyViews(context.Background(), "alice", "private")
	if err == nil || !contains(err.Error(), "alice/private") {
		t.Fatalf("GetWeeklyViews(private) error = %v, want wrapped forbidden error", err)
	}
	if _, err := client.GetWeeklyViews(context.Background(), "alice", " "); err == nil {
		t.Fatalf("GetWeeklyViews(blank repo) expected error, got nil")
	}
}
