package storage

import "time"

// CVUploadedMessage is published when a CV document has been stored and is
// waiting to be parsed.
type CVUploadedMessage struct {
	CVID             string    `json:"cv_id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
}
