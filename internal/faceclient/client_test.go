package faceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr error
	}{
		{name: "one face", status: http.StatusOK, body: `{"embedding":[0.1,0.2,0.3,0.4],"score":0.9,"faces_detected":1}`, wantLen: 4},
		{name: "no face", status: http.StatusOK, body: `{"embedding":[],"faces_detected":0}`, wantErr: ErrNoFace},
		{name: "two faces", status: http.StatusOK, body: `{"embedding":[0.1],"faces_detected":2}`, wantErr: ErrMultipleFaces},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/embed" || r.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var in map[string]string
				_ = json.NewDecoder(r.Body).Decode(&in)
				if in["image_url"] != "https://img/x.jpg" {
					t.Errorf("image_url = %q", in["image_url"])
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			emb, err := New(srv.URL, false).Encode(context.Background(), "https://img/x.jpg")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(emb) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(emb), tt.wantLen)
			}
		})
	}
}

func TestEncodeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Encode(context.Background(), "https://img/x.jpg")
	if err == nil || errors.Is(err, ErrNoFace) {
		t.Fatalf("expected service error, got %v", err)
	}
	if err := New(srv.URL, false).Health(context.Background()); err == nil {
		t.Fatal("expected unhealthy")
	}
}

func TestSkipMode(t *testing.T) {
	c := New("http://unreachable.invalid", true)
	emb, err := c.Encode(context.Background(), "https://img/x.jpg")
	if err != nil || len(emb) == 0 {
		t.Fatalf("skip mode should return a fixed embedding, got %v %v", emb, err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("skip mode health: %v", err)
	}
	if _, err := c.Encode(context.Background(), ""); err == nil {
		t.Fatal("empty url should fail even in skip mode")
	}
}
