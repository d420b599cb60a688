package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const NoOrganization = "No Organization"

// Deal is the subset of a Pipedrive deal the conversation flows need.
type Deal struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
	Org      OrgRef   `json:"org_id"`
}

// NumericValue returns the deal value, treating a missing value as zero.
func (d Deal) NumericValue() float64 {
	if d.Value == nil {
		return 0
	}
	return *d.Value
}

// Amount renders "<value> <currency>" the way deal listings show it.
func (d Deal) Amount() string {
	value := "0"
	if d.Value != nil {
		value = strconv.FormatFloat(*d.Value, 'f', -1, 64)
	}
	if d.Currency == "" {
		return value
	}
	return value + " " + d.Currency
}

// OrgName returns the deal's organization name or the "No Organization" bucket.
func (d Deal) OrgName() string {
	if d.Org.Name == "" {
		return NoOrganization
	}
	return d.Org.Name
}

// OrgRef accepts every shape Pipedrive uses for org_id: null, a bare id, or
// an expanded {"name": ..., "value": ...} object.
type OrgRef struct {
	ID   int64
	Name string
}

func (o *OrgRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = OrgRef{}
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			Name  string `json:"name"`
			Value int64  `json:"value"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("domain: decode org_id object: %w", err)
		}
		*o = OrgRef{ID: obj.Value, Name: obj.Name}
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("domain: decode org_id: %w", err)
	}
	*o = OrgRef{ID: id}
	return nil
}

// Note is a Pipedrive note.
type Note struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	AddTime string `json:"add_time"`
}

// Organization is a Pipedrive organization as returned by search.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SearchResult is the nested {"items":[{"item":...}]} search payload.
type SearchResult[T any] struct {
	Items []struct {
		Item *T `json:"item"`
	} `json:"items"`
}
