package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

// ShowProgress runs fn while showing a spinner on stderr
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	// Check if we're in a TTY
	if !IsTerminal(os.Stderr) {
		LogDebug("%s", message)
		return fn()
	}
	return showProgressSimple(ctx, os.Stderr, message, fn)
}

// showProgressSimple uses a simple text-based spinner
func showProgressSimple(ctx context.Context, w io.Writer, message string, fn func() error) error {
	spinnerChars := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	done := make(chan error, 1)
	stop := make(chan struct{})
	spinnerDone := make(chan struct{})

	// Start spinner
	go func() {
		defer close(spinnerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				char := spinnerChars[i%len(spinnerChars)]
				fmt.Fprintf(w, "\r%s %s", progressStyle.Render(char), message)
				i++
			}
		}
	}()

	// Run the function
	go func() {
		done <- fn()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	close(stop)
	<-spinnerDone

	if err != nil {
		fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
		return err
	}
	fmt.Fprintf(w, "\r%s %s\n", successStyle.Render("✓"), message)
	return nil
}

// IsTerminal reports whether w is a character device
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// FormatNotice renders a notice with the style of its kind
func FormatNotice(n Notice, styled bool) string {
	if !styled {
		return fmt.Sprintf("%s: %s", n.Kind, n.Message)
	}
	switch n.Kind {
	case NoticeError:
		return fmt.Sprintf("%s %s", errorStyle.Render("✗"), n.Message)
	case NoticeWarning:
		return fmt.Sprintf("%s %s", warningStyle.Render("⚠"), n.Message)
	case NoticeSuccess:
		return fmt.Sprintf("%s %s", successStyle.Render("✓"), n.Message)
	default:
		return fmt.Sprintf("%s %s", progressStyle.Render("ℹ"), n.Message)
	}
}

// PrintNotice writes a notice to stderr
func PrintNotice(n Notice) {
	fmt.Fprintf(os.Stderr, "\r%s\n", FormatNotice(n, IsTerminal(os.Stderr)))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	if IsTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintError prints an error message
func PrintError(message string) {
	if IsTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(os.Stderr, "%s\n", message)
	}
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	if IsTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	if IsTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", message)
	}
}
