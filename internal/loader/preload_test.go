package loader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHTTPPreloader(t *testing.T) {
	pano := pngBytes(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tour_images/hall.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pano)
	})
	mux.HandleFunc("GET /tour_images/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewHTTPPreloader(srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"decodable image", "tour_images/hall.png", false},
		{"missing image", "tour_images/missing.jpg", true},
		{"not an image", "tour_images/notes.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Preload(context.Background(), tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Preload(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestHTTPPreloaderCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := NewHTTPPreloader(srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Preload(ctx, "/tour_images/slow.jpg"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
