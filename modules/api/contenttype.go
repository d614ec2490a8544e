package api

import (
	"net/url"
	"path"
	"strings"
)

const defaultContentType = "application/octet-stream"

// mimeTypes maps lower-case file extensions to the Content-Type served on
// download. Anything else is served as application/octet-stream.
var mimeTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// detectContentType picks a Content-Type from the file name's extension.
func detectContentType(fileName string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(fileName))]; ok {
		return ct
	}
	return defaultContentType
}

// contentDisposition builds an attachment header for fileName. Quotes and
// line breaks are stripped. Names with non-ASCII characters get an ASCII
// fallback plus an RFC 5987 filename* parameter.
func contentDisposition(fileName string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\r', '\n':
			return -1
		}
		return r
	}, fileName)

	ascii := true
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 {
			ascii = false
			return '_'
		}
		return r
	}, clean)

	header := `attachment; filename="` + fallback + `"`
	if !ascii {
		header += "; filename*=UTF-8''" + url.PathEscape(clean)
	}
	return header
}
