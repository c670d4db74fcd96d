package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "faces")
	params := map[string]string{"timestamp": "1700000000", "folder": "faces", "api_key": "key"}

	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=faces&timestamp=1700000000secret")))
	if got := c.sign(params); got != want {
		t.Fatalf("sign = %s, want %s", got, want)
	}
}

func TestUploadBase64(t *testing.T) {
	var gotFile, gotSig, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotFile = r.FormValue("file")
		gotSig = r.FormValue("signature")
		w.Write([]byte(`{"public_id":"faces/abc","secure_url":"https://res.example/faces/abc.jpg"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "faces")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadBase64(context.Background(), "aGVsbG8=")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.SecureURL != "https://res.example/faces/abc.jpg" {
		t.Errorf("SecureURL = %q", res.SecureURL)
	}
	if gotPath != "/demo/image/upload" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotFile, "data:image/jpeg;base64,") {
		t.Errorf("file should be a data url, got %q", gotFile)
	}
	if gotSig != c.sign(map[string]string{"timestamp": "1700000000", "folder": "faces"}) {
		t.Errorf("unexpected signature %q", gotSig)
	}
}

func TestUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if _, err := c.UploadBytes(context.Background(), []byte{0xff, 0xd8}, "face.jpg"); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := c.UploadBytes(context.Background(), nil, "face.jpg"); err == nil {
		t.Fatal("expected error for empty data")
	}
}
