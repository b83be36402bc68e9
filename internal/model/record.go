package model

// Attribute is one trait entry of a metadata record.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Record is the metadata file written for every generated item. Field order
// is the on-disk order.
type Record struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	ExternalURL string      `json:"external_url,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}
