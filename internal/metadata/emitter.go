// Package metadata builds the per-item metadata records and rewrites their
// image references once the images have been published.
package metadata

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// Collection holds the fields shared by every record of a job.
type Collection struct {
	Name         string
	Description  string
	BaseImageURL string
	ExternalURL  string
	Extension    string
}

// CollectionFromRequest maps a validated job request to its collection fields.
func CollectionFromRequest(r model.JobRequest) Collection {
	return Collection{
		Name:         r.CollectionName,
		Description:  r.CollectionDescription,
		BaseImageURL: r.BaseImageURL,
		ExternalURL:  r.ExternalURL,
		Extension:    r.OutputFormat,
	}
}

// NewRecord builds the record for item id. Attributes follow layer order.
func NewRecord(c Collection, id int, combo model.Combination) model.Record {
	ext := c.Extension
	if ext == "" {
		ext = model.FormatPNG
	}
	attrs := make([]model.Attribute, len(combo))
	for i, s := range combo {
		attrs[i] = model.Attribute{TraitType: s.Layer, Value: s.Trait.Name}
	}
	return model.Record{
		Name:        c.Name + " #" + strconv.Itoa(id),
		Description: c.Description,
		Image:       c.BaseImageURL + strconv.Itoa(id) + "." + ext,
		ExternalURL: c.ExternalURL,
		Attributes:  attrs,
	}
}

// Marshal encodes a record the way it is stored on disk: four-space indent,
// no HTML escaping, no trailing newline.
func Marshal(rec model.Record) ([]byte, error) {
	return encode(rec, "    ")
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WriteRecord stores rec at path, replacing any existing file atomically.
func WriteRecord(path string, rec model.Record) error {
	b, err := Marshal(rec)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}
