// Package openalex fetches recent works from the OpenAlex API.
//
// Works are returned as raw records so normalization stays in one place.
// The topic area is selected by a primary field id, a primary subfield id, or
// both; when neither is configured they are resolved from a topic search.
//
// API Documentation: https://docs.openalex.org/
package openalex

import "encoding/json"

// worksPage is one page of the /works endpoint. Results stay raw.
type worksPage struct {
	Meta    meta              `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

type meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// topicsPage is one page of the /topics endpoint.
type topicsPage struct {
	Meta    meta    `json:"meta"`
	Results []Topic `json:"results"`
}

// Topic is an OpenAlex topic with its place in the classification tree.
type Topic struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Subfield    *Taxonomy `json:"subfield"`
	Field       *Taxonomy `json:"field"`
	Domain      *Taxonomy `json:"domain"`
}

// Taxonomy is a subfield, field or domain reference.
type Taxonomy struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// TopicIDs are the classification ids used to filter works.
type TopicIDs struct {
	FieldID    string
	SubfieldID string
}

// Empty reports whether neither id is set.
func (t TopicIDs) Empty() bool {
	return t.FieldID == "" && t.SubfieldID == ""
}
