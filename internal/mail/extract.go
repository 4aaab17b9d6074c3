package mail

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ExtractAddress pulls the bare lowercase address out of a From header.
// Handles "Jane Doe <jane@example.com>" as well as bare addresses, and
// falls back to a pattern scan for malformed headers.
func ExtractAddress(from string) string {
	if addr, err := netmail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	if m := addressPattern.FindString(from); m != "" {
		return strings.ToLower(m)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// extractTextBody parses a raw RFC 5322 message and returns its
// plain-text body. Multipart messages yield the first text/plain part.
func extractTextBody(r io.Reader) (string, error) {
	msg, err := netmail.ReadMessage(r)
	if err != nil {
		return "", err
	}
	return partText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
}

func partText(contentType, encoding string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			text, err := partText(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err == nil && text != "" {
				return text, nil
			}
		}
		return "", nil
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return "", nil
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
