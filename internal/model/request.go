package model

import (
	"fmt"
	"strings"
)

// Output image formats.
const (
	FormatPNG = "png"
	FormatGIF = "gif"
)

// DefaultBaseImageURL is written into metadata until the images are published.
const DefaultBaseImageURL = "ipfs://YOUR_IPFS_CID_PLACEHOLDER/"

// ValidationError reports a missing or invalid job parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// JobRequest holds the collection-level parameters of a generation job.
type JobRequest struct {
	Count                 int    `json:"count"`
	CollectionName        string `json:"collection_name"`
	CollectionDescription string `json:"collection_description"`
	BaseImageURL          string `json:"base_image_url"`
	ExternalURL           string `json:"external_url,omitempty"`
	UserAddress           string `json:"user_address"`
	CompressImages        bool   `json:"compress_images"`
	OutputFormat          string `json:"output_format"`
}

// NewJobRequest validates r and fills in defaults. maxItems <= 0 disables the upper bound.
func NewJobRequest(r JobRequest, maxItems int) (JobRequest, error) {
	r.CollectionName = strings.TrimSpace(r.CollectionName)
	r.CollectionDescription = strings.TrimSpace(r.CollectionDescription)
	r.UserAddress = strings.TrimSpace(r.UserAddress)
	r.BaseImageURL = strings.TrimSpace(r.BaseImageURL)
	r.ExternalURL = strings.TrimSpace(r.ExternalURL)
	r.OutputFormat = strings.ToLower(strings.TrimSpace(r.OutputFormat))

	if r.Count <= 0 {
		return r, &ValidationError{Field: "nftCount", Message: "must be a positive integer"}
	}
	if maxItems > 0 && r.Count > maxItems {
		return r, &ValidationError{Field: "nftCount", Message: fmt.Sprintf("must not exceed %d", maxItems)}
	}
	if r.CollectionName == "" {
		return r, &ValidationError{Field: "collectionName", Message: "is required"}
	}
	if r.CollectionDescription == "" {
		return r, &ValidationError{Field: "collectionDescription", Message: "is required"}
	}
	if r.UserAddress == "" {
		return r, &ValidationError{Field: "userAddress", Message: "is required"}
	}
	switch r.OutputFormat {
	case "":
		r.OutputFormat = FormatPNG
	case FormatPNG, FormatGIF:
	default:
		return r, &ValidationError{Field: "outputFormat", Message: "must be png or gif"}
	}
	if r.BaseImageURL == "" {
		r.BaseImageURL = DefaultBaseImageURL
	}
	return r, nil
}
