package api

import "strings"

// ContentType classifies a content part attached to a message.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"

	// Reserved for future provider support. Constructors reject them.
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
)

// Content is one part of a message body. Text parts carry Text, image parts
// carry Data (raw bytes, base64 on the wire). MIMEType is always set.
type Content struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	Data     []byte      `json:"data,omitempty"`
	MIMEType string      `json:"mime_type"`
}

// TextContent creates a plain-text content part.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text, MIMEType: "text/plain"}
}

// TextContentMIME creates a text content part with an explicit MIME type,
// e.g. "text/markdown".
func TextContentMIME(text, mimeType string) Content {
	return Content{Type: ContentTypeText, Text: text, MIMEType: mimeType}
}

// ImageContent creates an image content part from raw bytes.
func ImageContent(data []byte, mimeType string) Content {
	return Content{Type: ContentTypeImage, Data: data, MIMEType: mimeType}
}

// JoinText concatenates the text of all textual parts in order. Non-text
// parts are skipped.
func JoinText(parts []Content) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == ContentTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
