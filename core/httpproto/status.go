package httpproto

// statusText holds the reason phrases the server itself ever emits
// (informational/redirect/client-error responses generated by the
// static responder, the parser's own error paths, and the 100-continue
// handshake). The app bridge supplies its own reason phrase for
// application-generated responses.
var statusText = map[int]string{
	100: "Continue",
	200: "OK",
	206: "Partial Content",
	301: "Moved Permanently",
	304: "Not Modified",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	411: "Length Required",
	416: "Range Not Satisfiable",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Unknown" if the
// server never generates that status itself.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Unknown"
}
