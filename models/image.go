package models

import "time"

// Image is a proof-of-concept attachment owned by one Finding.
type Image struct {
	ID           int64     `json:"id"`
	FindingID    int64     `json:"findingId"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	FileSize     int64     `json:"fileSize"`
	Data         []byte    `json:"data,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImageUpload is an image as received from a client: the payload is base64,
// optionally in data-URL form ("data:image/png;base64,...").
type ImageUpload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}
