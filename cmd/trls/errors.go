// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/build"
	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/internal/discovery"
	"github.com/trellis-build/trls/internal/issue"
	"github.com/trellis-build/trls/internal/stage"
)

var (
	// ErrMissingCommand is returned when trls is invoked without a subcommand.
	ErrMissingCommand = errors.New("no command given")

	// ErrUnsupportedCommand is the sentinel error wrapped by UnsupportedCommandError.
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// UnsupportedCommandError is returned for an unknown subcommand.
type UnsupportedCommandError struct {
	Command string
}

// Error implements the error interface.
func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported command %q", e.Command)
}

// Unwrap returns ErrUnsupportedCommand so callers can use errors.Is for programmatic detection.
func (e *UnsupportedCommandError) Unwrap() error { return ErrUnsupportedCommand }

// issueFor maps an error to the catalog entry explaining it, or 0.
func issueFor(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	switch {
	case errors.Is(err, discovery.ErrStageFileNotFound):
		return issue.StageFileNotFoundId
	case errors.Is(err, discovery.ErrAmbiguousStageFile):
		return issue.AmbiguousStageFileId
	case errors.Is(err, stage.ErrMalformedStageToken):
		return issue.MalformedStageTokenId
	case errors.Is(err, config.ErrInvalidConfigValue):
		return issue.InvalidConfigValueId
	case errors.Is(err, build.ErrBuildFailure):
		return issue.BuildFailedId
	default:
		return 0
	}
}

// newErrorHandler returns the fang error handler. The default output is a
// single "====> ERROR:" line; --verbose adds suggestions, the error chain
// and the matching issue help.
func newErrorHandler(root *cobra.Command) fang.ErrorHandler {
	return func(w io.Writer, _ fang.Styles, err error) {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		renderError(w, err, verbose)
	}
}

func renderError(w io.Writer, err error, verbose bool) {
	s := newStyles(w)

	msg := err.Error()
	var ae *issue.ActionableError
	if verbose && errors.As(err, &ae) {
		msg = ae.Format(true)
	}
	if !verbose {
		// Keep the diagnostic on one line unless it carries captured output.
		if first, _, found := strings.Cut(msg, "\n"); found && !errors.Is(err, build.ErrBuildFailure) {
			msg = first
		}
	}
	fmt.Fprintln(w, s.errorPrefix.Render(prefixError), msg)

	if !verbose {
		return
	}
	id := issueFor(err)
	if id == 0 {
		return
	}
	if entry := issue.Get(id); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			slog.Warn("failed to render issue catalog entry", "issueID", id, "error", renderErr)
			return
		}
		fmt.Fprint(w, rendered)
	}
}
