package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// uiHandler serves the companion UI from fsys. Paths that are not files
// fall back to index.html so client-side routes resolve.
func uiHandler(fsys fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fsys == nil {
			writeError(w, http.StatusNotFound, "ui not available")
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}
		if st, err := fs.Stat(fsys, name); err != nil || st.IsDir() {
			name = "index.html"
		}
		if name == "index.html" {
			w.Header().Set("Cache-Control", "no-cache")
		}
		http.ServeFileFS(w, r, fsys, name)
	}
}
