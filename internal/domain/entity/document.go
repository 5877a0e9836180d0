package entity

import "time"

// Document is the immutable input to the extraction pipeline. It is created
// once at upload and never mutated; reprocessing re-reads the same bytes.
type Document struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	Category   string    `json:"category"`
	Content    []byte    `json:"-"`
	Status     string    `json:"status"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// IsSpreadsheet reports whether the declared MIME type is a spreadsheet
// export (xlsx or legacy xls).
func (d *Document) IsSpreadsheet() bool {
	switch d.MimeType {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel":
		return true
	}
	return false
}

// IsPDF reports whether the declared MIME type is a PDF.
func (d *Document) IsPDF() bool {
	return d.MimeType == "application/pdf"
}

// IsImage reports whether the declared MIME type is a raster image.
func (d *Document) IsImage() bool {
	switch d.MimeType {
	case "image/jpeg", "image/png", "image/webp", "image/tiff":
		return true
	}
	return false
}

// IsText reports whether the declared MIME type is plain text or CSV.
func (d *Document) IsText() bool {
	switch d.MimeType {
	case "text/plain", "text/csv":
		return true
	}
	return false
}
