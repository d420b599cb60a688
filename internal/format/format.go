// Package format turns raw CRM API payloads into short human-readable text.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pipedrive-agent/internal/domain"
)

const (
	MsgNoRecords         = "I couldn't find any matching deals or records."
	MsgNoMatchingRecords = "No matching records found."
	DefaultDateLayout    = "1/2/2006"
	dateNotAvailable     = "Date not available"
)

var addTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Formatter renders deals, notes and generic records.
type Formatter struct {
	layout string
	loc    *time.Location
}

type Option func(*Formatter)

// WithDateLayout sets the time.Format layout used for localized dates.
func WithDateLayout(layout string) Option {
	return func(f *Formatter) {
		if strings.TrimSpace(layout) != "" {
			f.layout = layout
		}
	}
}

// WithLocation sets the time zone dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

func New(opts ...Option) *Formatter {
	f := &Formatter{layout: DefaultDateLayout, loc: time.UTC}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Response formats a full API payload of the form {"data": ...}.
func (f *Formatter) Response(payload []byte) string {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return MsgNoRecords
	}
	data := bytes.TrimSpace(envelope.Data)
	if isEmptyData(data) {
		return MsgNoRecords
	}

	if data[0] != '[' {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			return "Here's what I found:\n" + string(data)
		}
		return "Here's what I found:\n" + pretty.String()
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return MsgNoRecords
	}
	return f.Records(items)
}

func isEmptyData(data []byte) bool {
	switch string(data) {
	case "", "null", `""`, "false", "0":
		return true
	}
	return false
}

// Records renders each item and applies the join rule: one item is returned
// verbatim, several are prefixed with a count.
func (f *Formatter) Records(items []json.RawMessage) string {
	rendered := make([]string, 0, len(items))
	for _, item := range items {
		rendered = append(rendered, f.Record(item))
	}
	switch len(rendered) {
	case 0:
		return MsgNoMatchingRecords
	case 1:
		return rendered[0]
	default:
		return fmt.Sprintf("I found %d items:\n\n%s", len(rendered), strings.Join(rendered, "\n\n"))
	}
}

// Record picks a template by shape: deals have a title, notes have content,
// everything else is listed field by field.
func (f *Formatter) Record(raw json.RawMessage) string {
	r, err := decodeRecord(raw)
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch {
	case r.has("title"):
		return f.deal(r)
	case r.has("content"):
		return f.note(r)
	default:
		return generic(r)
	}
}

func (f *Formatter) deal(r record) string {
	value := "No value set"
	if r.has("value") {
		value = r.str("value") + " " + r.str("currency")
		value = strings.TrimSpace(value)
	}

	stage := "Unknown stage"
	if r.has("stage_id") {
		if id, ok := intValue(r.get("stage_id")); ok {
			stage = domain.StageName(id)
		} else {
			stage = fmt.Sprintf("Unknown stage (%s)", r.str("stage_id"))
		}
	}

	return strings.Join([]string{
		"📊 Deal: " + r.str("title"),
		"💰 Value: " + value,
		"📈 Stage: " + stage,
		"👤 Owner: " + owner(r),
		"📅 Added: " + f.dateOf(r),
	}, "\n")
}

func owner(r record) string {
	if r.has("owner_name") {
		return r.str("owner_name")
	}
	if user, ok := r.get("user").(map[string]any); ok && truthy(user["name"]) {
		return scalarString(user["name"])
	}
	return "Unassigned"
}

func (f *Formatter) note(r record) string {
	return "📝 Note: " + r.str("content") + "\n📅 Created: " + f.dateOf(r)
}

func (f *Formatter) dateOf(r record) string {
	if !r.has("add_time") {
		return dateNotAvailable
	}
	return f.Date(r.str("add_time"))
}

func generic(r record) string {
	lines := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		v := r.values[k]
		if !isScalar(v) {
			continue
		}
		lines = append(lines, k+": "+scalarString(v))
	}
	return strings.Join(lines, "\n")
}

// Date renders a CRM timestamp in the configured layout and zone.
// Unparseable or empty input yields "Date not available".
func (f *Formatter) Date(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dateNotAvailable
	}
	for _, layout := range addTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.In(f.loc).Format(f.layout)
		}
	}
	return dateNotAvailable
}
