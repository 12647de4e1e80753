package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// DocumentCategory is the declared kind of a submitted claim document
type DocumentCategory string

const (
	CategoryAccidentReport DocumentCategory = "accident_report"
	CategoryPoliceReport   DocumentCategory = "police_report"
	CategoryMedicalReport  DocumentCategory = "medical_report"
	CategoryRepairEstimate DocumentCategory = "repair_estimate"
	CategoryInsuranceCard  DocumentCategory = "insurance_card"
	CategoryOther          DocumentCategory = "other"
)

var validCategories = map[DocumentCategory]bool{
	CategoryAccidentReport: true,
	CategoryPoliceReport:   true,
	CategoryMedicalReport:  true,
	CategoryRepairEstimate: true,
	CategoryInsuranceCard:  true,
	CategoryOther:          true,
}

// IsValid reports whether the category is one of the known constants
func (c DocumentCategory) IsValid() bool {
	return validCategories[c]
}

// ParseDocumentCategory maps free-form input to a category, defaulting to other
func ParseDocumentCategory(s string) DocumentCategory {
	c := DocumentCategory(s)
	if c.IsValid() {
		return c
	}
	return CategoryOther
}

// ClaimDocument is an uploaded claim document. The content is copied on
// construction and on every read, so a document is never mutated after upload.
type ClaimDocument struct {
	ID         string           `json:"id"`
	Filename   string           `json:"filename"`
	MediaType  string           `json:"media_type"`
	Category   DocumentCategory `json:"category"`
	Digest     string           `json:"digest"`
	Size       int              `json:"size"`
	ReceivedAt time.Time        `json:"received_at"`

	content []byte
}

// NewClaimDocument creates a document from raw bytes and its declared metadata
func NewClaimDocument(filename, mediaType string, category DocumentCategory, content []byte) *ClaimDocument {
	data := make([]byte, len(content))
	copy(data, content)

	sum := sha256.Sum256(data)

	if !category.IsValid() {
		category = CategoryOther
	}

	return &ClaimDocument{
		ID:         uuid.NewString(),
		Filename:   filename,
		MediaType:  mediaType,
		Category:   category,
		Digest:     hex.EncodeToString(sum[:]),
		Size:       len(data),
		ReceivedAt: time.Now().UTC(),
		content:    data,
	}
}

// Bytes returns a copy of the document content
func (d *ClaimDocument) Bytes() []byte {
	out := make([]byte, len(d.content))
	copy(out, d.content)
	return out
}

// ExtractedText is the output of text extraction for exactly one document
type ExtractedText struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	Degraded         bool    `json:"degraded"`
	Method           string  `json:"method,omitempty"`
	PageCount        int     `json:"page_count,omitempty"`
	RegionCount      int     `json:"region_count,omitempty"`
	SourceDocumentID string  `json:"source_document_id"`

	Source *ClaimDocument `json:"-"`
}
