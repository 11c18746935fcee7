// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Message prefixes.
const (
	prefixInfo    = "====>"
	prefixWarning = "====> WARNING:"
	prefixError   = "====> ERROR:"
)

// Color palette.
const (
	// ColorPrimary is purple - used for titles.
	ColorPrimary = lipgloss.Color("#7C3AED")

	// ColorMuted is gray - used for subtitles.
	ColorMuted = lipgloss.Color("#6B7280")

	// ColorSuccess is green - used for progress and success lines.
	ColorSuccess = lipgloss.Color("#10B981")

	// ColorError is red - used for errors.
	ColorError = lipgloss.Color("#EF4444")

	// ColorWarning is amber - used for warnings.
	ColorWarning = lipgloss.Color("#F59E0B")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

type (
	// styles holds the prefix styles bound to one output writer, so color
	// detection follows that writer rather than the process stdout.
	styles struct {
		infoPrefix    lipgloss.Style
		warningPrefix lipgloss.Style
		errorPrefix   lipgloss.Style
	}

	// reporter prints progress lines to stdout and warnings to stderr.
	reporter struct {
		mu     sync.Mutex
		stdout io.Writer
		stderr io.Writer
		out    styles
		err    styles
	}
)

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		infoPrefix:    r.NewStyle().Bold(true).Foreground(ColorSuccess),
		warningPrefix: r.NewStyle().Bold(true).Foreground(ColorWarning),
		errorPrefix:   r.NewStyle().Bold(true).Foreground(ColorError),
	}
}

func newReporter(stdout, stderr io.Writer) *reporter {
	return &reporter{
		stdout: stdout,
		stderr: stderr,
		out:    newStyles(stdout),
		err:    newStyles(stderr),
	}
}

// Info prints a "====>" line to stdout.
func (r *reporter) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.stdout, r.out.infoPrefix.Render(prefixInfo), msg)
}

// Warning prints a "====> WARNING:" line to stderr.
func (r *reporter) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.stderr, r.err.warningPrefix.Render(prefixWarning), msg)
}
