package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"gmailer-bot/internal/jobs"
	"gmailer-bot/internal/schedule"
	"gmailer-bot/internal/state"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	sentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	declinedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	headerStyle   = lipgloss.NewStyle().Bold(true)
)

// failureOutcomes are the outcomes styled as errors.
var failureOutcomes = map[string]bool{
	jobs.OutcomeSentNotStored:            true,
	jobs.OutcomeStateReadFailed:          true,
	jobs.OutcomeRawFetchFailed:           true,
	jobs.OutcomeSendFailed:               true,
	jobs.OutcomeRenderFailed:             true,
	jobs.OutcomeUnknown:                  true,
	schedule.InvalidFutureState.String(): true,
}

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format   string
	out      io.Writer
	useColor bool
}

// NewOutputFormatter creates a new output formatter. Colour is used only
// for text output to a terminal.
func NewOutputFormatter(format string, noColor bool, out io.Writer) (*OutputFormatter, error) {
	switch format {
	case "", FormatText:
		format = FormatText
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if out == nil {
		out = os.Stdout
	}

	useColor := false
	if f, ok := out.(*os.File); ok && !noColor {
		useColor = isatty.IsTerminal(f.Fd())
	}
	return &OutputFormatter{format: format, out: out, useColor: useColor}, nil
}

// PrintReport prints a job report, one line per report line in text mode.
func (f *OutputFormatter) PrintReport(r jobs.Report) error {
	if f.format == FormatJSON {
		return json.NewEncoder(f.out).Encode(r)
	}

	style := declinedStyle
	switch {
	case r.Sent() && !failureOutcomes[r.Outcome]:
		style = sentStyle
	case failureOutcomes[r.Outcome]:
		style = failedStyle
	}

	for _, line := range r.Lines {
		if f.useColor {
			line = style.Render(line)
		}
		if _, err := fmt.Fprintln(f.out, line); err != nil {
			return err
		}
	}
	return nil
}

// StateView is a stored state file as shown by "state show".
type StateView struct {
	Job      string `json:"job"`
	Backend  string `json:"backend"`
	Path     string `json:"path"`
	Found    bool   `json:"found"`
	LastSent string `json:"last_sent,omitempty"`
	Contents string `json:"email_contents,omitempty"`
}

// PrintState prints a job's stored state
func (f *OutputFormatter) PrintState(v StateView) error {
	if f.format == FormatJSON {
		return json.NewEncoder(f.out).Encode(v)
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job:\t%s\n", v.Job)
	fmt.Fprintf(w, "Location:\t%s in %s\n", v.Path, v.Backend)
	if !v.Found {
		fmt.Fprintf(w, "State:\tnot stored yet\n")
		return w.Flush()
	}
	fmt.Fprintf(w, "Last sent:\t%s\n", v.LastSent)
	if err := w.Flush(); err != nil {
		return err
	}

	header := "Email contents:"
	if f.useColor {
		header = headerStyle.Render(header)
	}
	_, err := fmt.Fprintf(f.out, "\n%s\n%s\n", header, strings.TrimRight(v.Contents, "\r\n"))
	return err
}

// PrintHistory prints run history in table format
func (f *OutputFormatter) PrintHistory(records []state.RunRecord) error {
	if f.format == FormatJSON {
		if records == nil {
			records = []state.RunRecord{}
		}
		return json.NewEncoder(f.out).Encode(records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(f.out, "No runs recorded.")
		return err
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RAN AT\tJOB\tOUTCOME\tRUN ID\tREPORT")
	for _, r := range records {
		first, _, _ := strings.Cut(r.Report, "\n")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RanAt.Local().Format("2006-01-02 15:04"),
			r.Job,
			r.Outcome,
			shortID(r.RunID),
			truncate(first, 60))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
