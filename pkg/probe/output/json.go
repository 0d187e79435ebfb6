package output

import (
	"encoding/json"
	"io"
)

// jsonEvent is one line of JSON output.
type jsonEvent struct {
	Type    string   `json:"type"`
	Header  *Header  `json:"header,omitempty"`
	Record  *Record  `json:"record,omitempty"`
	Summary *Summary `json:"summary,omitempty"`

	CurrentMiB *float64 `json:"current_mib,omitempty"`
	DeltaMiB   *float64 `json:"delta_mib,omitempty"`
}

// JSONFormatter writes newline-delimited JSON, one object per event,
// so a long run can be consumed while it is still going.
type JSONFormatter struct{}

// Header writes a {"type":"header"} line.
func (f *JSONFormatter) Header(w io.Writer, h *Header) error {
	return json.NewEncoder(w).Encode(jsonEvent{Type: "header", Header: h})
}

// Record writes a {"type":"record"} line.
func (f *JSONFormatter) Record(w io.Writer, r *Record) error {
	current := round2(r.CurrentMiB())
	delta := round2(r.DeltaMiB())
	return json.NewEncoder(w).Encode(jsonEvent{
		Type:       "record",
		Record:     r,
		CurrentMiB: &current,
		DeltaMiB:   &delta,
	})
}

// Footer writes a {"type":"summary"} line.
func (f *JSONFormatter) Footer(w io.Writer, s *Summary) error {
	return json.NewEncoder(w).Encode(jsonEvent{Type: "summary", Summary: s})
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
