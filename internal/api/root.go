package api

import (
	"io/fs"
	"net/http"
)

// Root is the API discovery endpoint.
func Root(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Upload an audio or video file to /generate-subtitles",
	})
}

// UploadPage serves the embedded browser upload interface.
func UploadPage(web fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(web, "index.html")
		if err != nil {
			http.Error(w, "upload page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}
