package models

import "time"

// DocumentType identifies the extractor that produced a document.
type DocumentType string

const (
	TypePDF   DocumentType = "pdf"
	TypeWord  DocumentType = "word"
	TypeExcel DocumentType = "excel"
	TypeCSV   DocumentType = "csv"
	TypeText  DocumentType = "text"
	TypeHTML  DocumentType = "html"
	TypeWeb   DocumentType = "web"
)

// Tabular reports whether the document carries rows the business analyzer can read.
func (t DocumentType) Tabular() bool {
	return t == TypeExcel || t == TypeCSV
}

// Chunk metadata keys shared by every vector store backend.
const (
	MetaDocumentID      = "document_id"
	MetaFilename        = "filename"
	MetaType            = "type"
	MetaChunkIndex      = "chunk_index"
	MetaUploadTimestamp = "upload_timestamp"
	MetaPages           = "pages"
	MetaExcelSummary    = "excel_summary"
	MetaURL             = "url"
	MetaTitle           = "title"
)

type Document struct {
	ID       string
	URL      string
	Title    string
	Filename string
	Type     DocumentType
	Content  string
	Size     int64
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks []string
}

// Chunk is one window of a document as stored in the vector store.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

type SearchHit struct {
	Chunk
	Score float32 `json:"score"`
}

// DocumentInfo is the catalog row kept for every document in the knowledge base.
type DocumentInfo struct {
	DocumentID string       `json:"document_id"`
	Filename   string       `json:"filename"`
	Type       DocumentType `json:"type"`
	Chunks     int          `json:"chunks"`
	UploadDate time.Time    `json:"upload_date"`
	Size       int64        `json:"size"`
	Source     string       `json:"source,omitempty"`
}
