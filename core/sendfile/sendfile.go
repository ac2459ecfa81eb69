// Package sendfile supplies the static responder's content-type table.
// The teacher's own zero-copy sendfile syscall wrapper is not reused
// here (see DESIGN.md): core/netconn.Connection.SendFile already owns
// that syscall against a *os.File the caller opens fresh per request,
// and the teacher's LRU FileCache sharing one *os.File across requests
// is not safe against static's concurrent Range reads (two goroutines
// Seek+Read the same fd would race each other's offsets).
package sendfile

import "path/filepath"

// GetContentType returns a MIME type for filename based on its
// extension, carried from the original implementation's extension
// table (spec.md §9 "Supplemented from original_source").
func GetContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".xml":
		return "application/xml; charset=utf-8"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".gz":
		return "application/gzip"
	case ".ttf":
		return "font/ttf"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
