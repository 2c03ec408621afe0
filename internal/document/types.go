package document

import (
	"path/filepath"
	"strings"
)

// Metadata is the citation information carried by every Unit and Fragment.
type Metadata struct {
	// Source is the original filename (e.g., "labor_law.txt").
	Source string `json:"source"`
	// Subject is the filename stem (e.g., "labor_law").
	Subject string `json:"subject"`
	// Article is the detected marker text or a synthetic label.
	Article string `json:"article"`
}

// Unit is a retrievable whole passage of legal text: an article or a fallback window.
type Unit struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Metadata Metadata `json:"metadata"`
}

// Fragment is a small slice of a Unit's body used only to drive similarity search.
type Fragment struct {
	ID       string
	UnitID   string // Back-reference to the owning Unit
	Index    int    // Position within the owning Unit (starts at 0)
	Text     string
	Metadata Metadata
}

// SubjectFromSource returns the filename stem of source.
func SubjectFromSource(source string) string {
	name := filepath.Base(source)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// NewMetadata builds the metadata for a unit titled title from source.
func NewMetadata(source, title string) Metadata {
	return Metadata{
		Source:  source,
		Subject: SubjectFromSource(source),
		Article: title,
	}
}
