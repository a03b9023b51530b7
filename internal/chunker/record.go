package chunker

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ChunkType tags an output record.
type ChunkType string

const (
	TypeSection ChunkType = "section"
	TypeImage   ChunkType = "image"
	TypeTOC     ChunkType = "TOC"
)

// SectionLink is the section context copied onto a record.
type SectionLink struct {
	SectionNumber       string  `json:"section_number"`
	SectionTitle        string  `json:"section_title"`
	ParentSectionNumber *string `json:"parent_section_number"`
	ParentSectionTitle  *string `json:"parent_section_title"`
}

// ImagePayload points at the image file written during extraction.
type ImagePayload struct {
	Path string `json:"path"`
}

// Chunk is one emitted record. Which fields are serialized depends on Type.
type Chunk struct {
	Document string
	Title    *string
	Subtitle *string
	Type     ChunkType

	PageNumber      int
	PageNumberStart int
	PageNumberEnd   int

	// Section is always set for section chunks and set for image chunks
	// found inside a section.
	Section *SectionLink
	Payload *ImagePayload
	Content string
}

type sectionRecord struct {
	Document string    `json:"document"`
	Title    *string   `json:"title"`
	Subtitle *string   `json:"subtitle"`
	Type     ChunkType `json:"type"`

	PageNumber int `json:"page_number"`
	SectionLink
	Content string `json:"content"`
}

type imageRecord struct {
	Document string    `json:"document"`
	Title    *string   `json:"title"`
	Subtitle *string   `json:"subtitle"`
	Type     ChunkType `json:"type"`

	PageNumber int          `json:"page_number"`
	Payload    ImagePayload `json:"payload"`
	Content    string       `json:"content"`
	*SectionLink
}

type tocRecord struct {
	Document string    `json:"document"`
	Title    *string   `json:"title"`
	Subtitle *string   `json:"subtitle"`
	Type     ChunkType `json:"type"`

	PageNumberStart int    `json:"page_number_start"`
	PageNumberEnd   int    `json:"page_number_end"`
	Content         string `json:"content"`
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case TypeSection:
		r := sectionRecord{
			Document:   c.Document,
			Title:      c.Title,
			Subtitle:   c.Subtitle,
			Type:       c.Type,
			PageNumber: c.PageNumber,
			Content:    c.Content,
		}
		if c.Section != nil {
			r.SectionLink = *c.Section
		}
		return json.Marshal(r)
	case TypeImage:
		r := imageRecord{
			Document:    c.Document,
			Title:       c.Title,
			Subtitle:    c.Subtitle,
			Type:        c.Type,
			PageNumber:  c.PageNumber,
			Content:     c.Content,
			SectionLink: c.Section,
		}
		if c.Payload != nil {
			r.Payload = *c.Payload
		}
		return json.Marshal(r)
	case TypeTOC:
		return json.Marshal(tocRecord{
			Document:        c.Document,
			Title:           c.Title,
			Subtitle:        c.Subtitle,
			Type:            c.Type,
			PageNumberStart: c.PageNumberStart,
			PageNumberEnd:   c.PageNumberEnd,
			Content:         c.Content,
		})
	default:
		return nil, fmt.Errorf("unknown chunk type %q", c.Type)
	}
}

// WriteJSON writes chunks as an indented JSON array.
func WriteJSON(w io.Writer, chunks []Chunk) error {
	if chunks == nil {
		chunks = []Chunk{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(chunks)
}

// ToRecords converts chunks into generic JSON values, the form stored as
// vector payloads and checked against the record schema.
func ToRecords(chunks []Chunk) ([]map[string]any, error) {
	data, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("marshal chunks: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	return records, nil
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Normalize collapses runs of three or more newlines to two and trims the
// result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
}
