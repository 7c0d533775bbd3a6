package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// handleSPA serves static files from dir, falling back to index.html
// for any path that doesn't match a real file (SPA client-side routing).
// API and data paths never fall back.
func handleSPA(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)

	return func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range []string{"/api/", "/data/", "/admin/api/"} {
			if strings.HasPrefix(r.URL.Path, prefix) {
				writeError(w, http.StatusNotFound, "Not found")
				return
			}
		}

		path := filepath.Join(dir, filepath.Clean(r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}

// handleImageFiles serves the panorama files themselves under /tour_images/.
func handleImageFiles(dir string) http.Handler {
	return http.StripPrefix("/tour_images/", http.FileServer(http.Dir(dir)))
}
