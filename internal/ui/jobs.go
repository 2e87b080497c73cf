package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samsaffron/sizesync/internal/history"
)

// WriteJobs prints jobs as an aligned table, newest first as given.
func WriteJobs(w io.Writer, s *Styles, jobs []history.Job, now time.Time) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, s.Muted.Render("No resize jobs recorded yet."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"WHEN", "OUTCOME", "MODE", "INPUT", "SOURCE", "RESULT", "SIZE"}
	for i, h := range header {
		header[i] = s.TableHeader.Render(h)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Muted.Render(humanize.RelTime(job.CreatedAt, now, "ago", "from now")),
			outcomeStyle(s, job.Outcome),
			orDash(job.Mode),
			orDash(job.Input),
			dims(job.SourceWidth, job.SourceHeight),
			result(job),
			size(job.Bytes),
		)
	}
	return tw.Flush()
}

func outcomeStyle(s *Styles, o history.Outcome) string {
	switch o {
	case history.OutcomeDelivered:
		return s.Success.Render(string(o))
	case history.OutcomeUnreachable:
		return s.Warning.Render(string(o))
	case history.OutcomeFailed:
		return s.Error.Render(string(o))
	}
	return s.Muted.Render(string(o))
}

func dims(w, h int) string {
	if w == 0 || h == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", w, h)
}

func result(job history.Job) string {
	out := dims(job.Width, job.Height)
	if job.Quality > 0 && out != "-" {
		out += fmt.Sprintf(" q%d", job.Quality)
	}
	return out
}

func size(n int) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
