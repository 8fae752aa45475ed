package entity

// Receipt status constants
const (
	ReceiptStatusPending   = "Pending"
	ReceiptStatusSubmitted = "Submitted"
	ReceiptStatusFailed    = "Failed"
)

// Supported upload media types
const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

// MaxUploadSize is the largest receipt file accepted for extraction (5 MiB)
const MaxUploadSize = 5 * 1024 * 1024

// IsSupportedMediaType reports whether a receipt upload of this type can be extracted
func IsSupportedMediaType(mediaType string) bool {
	switch mediaType {
	case MediaTypePDF, MediaTypePNG, MediaTypeJPEG:
		return true
	}
	return false
}
