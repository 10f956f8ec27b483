package types

// Artifact is a named, versioned blob with metadata. After a proxy has
// finished outbound handling, an Artifact never carries inline bytes in any
// of its parts — bytes are persisted and replaced by a content-addressed
// URI of the form artifact://{app}/{user}/{session}/{filename}?version={N}.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	MimeType    string         `json:"mimeType,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasInlineBytes reports whether any part of the artifact still carries
// inline file bytes awaiting persistence.
func (a Artifact) HasInlineBytes() bool {
	for _, p := range a.Parts {
		if p.HasInlineBytes() {
			return true
		}
	}
	return false
}

// ProducedArtifactManifestEntry records one artifact a task produced, for
// the TaskContext's producedArtifactManifest (spec.md §3).
type ProducedArtifactManifestEntry struct {
	Filename string `json:"filename"`
	Version  int    `json:"version"`
}
