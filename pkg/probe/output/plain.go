package output

import (
	"fmt"
	"io"
)

// Separator follows the plain header.
const Separator = "---------------------------------------------------------"

// PlainFormatter writes the classic line-per-iteration report:
//
//	Iteration 3/50: Current RSS: 41.27 MB | Total increase: +2.15 MB
//
// The '+' is always printed, so a negative delta reads "+-0.50".
type PlainFormatter struct{}

// Header writes the pid, initial RSS and a separator line.
func (f *PlainFormatter) Header(w io.Writer, h *Header) error {
	_, err := fmt.Fprintf(w, "PID: %d\nInitial RSS: %.2f MB\n%s\n", h.PID, h.BaselineMiB(), Separator)
	return err
}

// Record writes one iteration line.
func (f *PlainFormatter) Record(w io.Writer, r *Record) error {
	_, err := io.WriteString(w, FormatLine(r)+"\n")
	return err
}

// Footer writes nothing; the plain report ends with the last iteration.
func (f *PlainFormatter) Footer(io.Writer, *Summary) error {
	return nil
}

// FormatLine renders the iteration line without a trailing newline.
func FormatLine(r *Record) string {
	return fmt.Sprintf("Iteration %d/%d: Current RSS: %.2f MB | Total increase: +%.2f MB",
		r.Index, r.Total, r.CurrentMiB(), r.DeltaMiB())
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
