package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders a styled report for interactive terminals.
type PrettyFormatter struct{}

// Header renders the run metadata in a box.
func (f *PrettyFormatter) Header(w io.Writer, h *Header) error {
	baseline := SizeStyle.Render(fmt.Sprintf("%.2f MB", h.BaselineMiB()))
	if h.Degraded {
		baseline = ErrorStyle.Render("unavailable")
	}

	lines := []string{
		field("Run:", h.RunID) + "  " + field("PID:", fmt.Sprint(h.PID)),
		field("Mode:", h.Mode) + "  " + field("Target:", h.Target),
		field("Iterations:", fmt.Sprint(h.Iterations)) + "  " +
			field("Transfer:", humanize.IBytes(uint64(h.TransferSize))),
		LabelStyle.Render("Initial RSS:") + " " + baseline,
	}

	_, err := fmt.Fprintln(w, HeaderBox.Render(strings.Join(lines, "\n")))
	return err
}

// Record renders one iteration with the delta colored by direction.
func (f *PrettyFormatter) Record(w io.Writer, r *Record) error {
	index := MutedStyle.Render(fmt.Sprintf("%*d/%d", len(fmt.Sprint(r.Total)), r.Index, r.Total))

	current := SizeStyle.Render(fmt.Sprintf("%8.2f MB", r.CurrentMiB()))
	if r.Degraded {
		current = ErrorStyle.Render(fmt.Sprintf("%8s   ", "n/a"))
	}

	deltaText := fmt.Sprintf("%+.2f MB", r.DeltaMiB())
	delta := MutedStyle.Render(deltaText)
	switch {
	case r.DeltaKiB > 0:
		delta = GrowthStyle.Render(deltaText)
	case r.DeltaKiB < 0:
		delta = ShrinkStyle.Render(deltaText)
	}

	line := fmt.Sprintf("%s  %s  %s", index, current, delta)
	if r.IOError != "" {
		line += "  " + ErrorStyle.Render("io: "+r.IOError)
	} else if r.ShortRead {
		line += "  " + WarningStyle.Render("short read "+humanize.IBytes(uint64(r.IOBytes)))
	}
	if r.ChurnError != "" {
		line += "  " + ErrorStyle.Render("channel: "+r.ChurnError)
	}

	_, err := fmt.Fprintln(w, line)
	return err
}

// Footer renders the summary box.
func (f *PrettyFormatter) Footer(w io.Writer, s *Summary) error {
	lines := []string{
		field("Completed:", fmt.Sprintf("%d/%d in %s", s.Completed, s.Iterations, s.Duration.Round(time.Millisecond))),
		field("Peak RSS:", fmt.Sprintf("%.2f MB", float64(s.PeakKiB)/1024)) + "  " +
			field("Final change:", fmt.Sprintf("%+.2f MB", s.FinalDeltaMiB())),
	}

	if s.IOErrors > 0 || s.ChurnErrors > 0 || s.Degraded > 0 {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("%d io errors, %d channel errors, %d unavailable samples",
			s.IOErrors, s.ChurnErrors, s.Degraded)))
	}
	if s.Interrupted {
		lines = append(lines, WarningStyle.Render("Run interrupted"))
	}

	_, err := fmt.Fprintln(w, FooterBox.Render(strings.Join(lines, "\n")))
	return err
}

func field(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
