package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentID accepts both JSON strings and JSON numbers.
type DocumentID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *DocumentID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = DocumentID(s)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("document id must be a string or number, got %s", data)
	}
	*id = DocumentID(n.String())
	return nil
}

// Document is one entry of the service's document list.
type Document struct {
	ID             DocumentID `json:"id"`
	Title          string     `json:"title"`
	OCRText        string     `json:"ocrText,omitempty"`
	OCRSummaryText string     `json:"ocrSummaryText,omitempty"`
	ContentType    string     `json:"contentType,omitempty"`
	FileSize       int64      `json:"fileSize,omitempty"`
	UploadedAt     string     `json:"uploadedAt,omitempty"`
}

// Text returns the derived text carried by the listing, preferring the summary.
// Blank means the document still needs polling.
func (d Document) Text() string {
	if s := strings.TrimSpace(d.OCRSummaryText); s != "" {
		return s
	}
	return strings.TrimSpace(d.OCRText)
}

// HasText reports whether the listing already carries derived text.
func (d Document) HasText() bool {
	return d.Text() != ""
}
