package types

import (
	"encoding/json"
	"fmt"
)

// PartKind discriminates the variants of Part.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FileContent is the payload of a File part: either inline Bytes or a
// resolvable URI, never both at once once a proxy has processed it (see
// Artifact's no-inline-bytes-after-proxy invariant). The modern dialect
// names the mime field mime_type (spec.md §4.2/§6); the legacy dialect's
// flat mimeType equivalent is handled by pkg/translate.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Part is the polymorphic content unit carried by a Message or Artifact.
// Exactly one of Text, File, Data is populated, selected by Kind.
type Part struct {
	Kind PartKind        `json:"kind"`
	Text string          `json:"text,omitempty"`
	File *FileContent    `json:"file,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewTextPart builds a text Part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewFilePart builds a File part from a FileContent.
func NewFilePart(f FileContent) Part {
	return Part{Kind: PartKindFile, File: &f}
}

// NewDataPart builds a Data part from arbitrary structured data.
func NewDataPart(v any) (Part, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Part{}, fmt.Errorf("marshal data part: %w", err)
	}
	return Part{Kind: PartKindData, Data: raw}, nil
}

// HasInlineBytes reports whether this part carries inline file bytes that
// still need to be rewritten into a persisted artifact URI.
func (p Part) HasInlineBytes() bool {
	return p.Kind == PartKindFile && p.File != nil && len(p.File.Bytes) > 0
}
