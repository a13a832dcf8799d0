// Package models defines the domain types for notemind.
package models

// Granularity names the level a thought was extracted at.
type Granularity string

// Supported granularities.
const (
	GranularitySentence  Granularity = "sentence"
	GranularityParagraph Granularity = "paragraph"
	GranularitySummary   Granularity = "summary"
)

// Valid reports whether g is one of the known granularities.
func (g Granularity) Valid() bool {
	switch g {
	case GranularitySentence, GranularityParagraph, GranularitySummary:
		return true
	}
	return false
}

// Document is one source note from the corpus root.
// Its identity across scans is Path, not content.
type Document struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	RawText     string   `json:"-"`
	CleanedText string   `json:"-"`
	Tags        []string `json:"tags"`
	Checksum    string   `json:"checksum"`
}

// Scan is the result of reading the corpus once. Unreadable holds notes
// that are listed but could not be read this time; they are not deleted.
type Scan struct {
	Documents  []Document
	Unreadable []string
}

// Thought is an atomic retrievable unit derived from a Document.
type Thought struct {
	Text         string      `json:"text"`
	DocumentName string      `json:"document_name"`
	DocumentPath string      `json:"document_path"`
	Granularity  Granularity `json:"granularity"`
	Tags         []string    `json:"tags"`
	Embedding    []float32   `json:"-"`
}

// Neighbor is one search hit returned to callers.
type Neighbor struct {
	ThoughtText  string      `json:"thought_text"`
	Distance     float32     `json:"distance"`
	DocumentName string      `json:"document_name"`
	DocumentPath string      `json:"document_path"`
	Granularity  Granularity `json:"granularity"`
	Tags         []string    `json:"tags"`
	Row          int         `json:"row"`
}
