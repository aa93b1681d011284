package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// handleSPA serves the built client from dir, falling back to index.html
// for any path that doesn't match a real file. Handoff links such as
// /?session=<token> land on index.html and the client redeems the token.
func handleSPA(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, index)
	}
}
