// Package ui provides terminal output for the bill-assistant CLI.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	// Out receives regular output.
	Out io.Writer = os.Stdout
	// Err receives errors and progress.
	Err io.Writer = os.Stderr

	verboseFlag bool
)

// InitUI initializes the UI with color and verbose settings.
func InitUI(noColor, verbose bool) {
	verboseFlag = verbose
	if noColor {
		color.NoColor = true
	}
}

// Verbose reports whether verbose output was requested.
func Verbose() bool {
	return verboseFlag
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(Err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(Out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(Out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Step displays a step indicator message.
func Step(format string, args ...interface{}) {
	color.New(color.FgBlue).Fprintf(Out, "→ %s\n", fmt.Sprintf(format, args...))
}

// Newline prints a newline.
func Newline() {
	fmt.Fprintln(Out)
}

// Section displays a section header.
func Section(title string) {
	fmt.Fprintf(Out, "\n%s\n", color.New(color.Bold).Sprint(title))
	fmt.Fprintf(Out, "%s\n\n", strings.Repeat("=", displayWidth(title)))
}

// Speaker prints one labeled chat line.
func Speaker(label, content string) {
	c := color.New(color.FgMagenta, color.Bold)
	if label == UserLabel {
		c = color.New(color.FgGreen, color.Bold)
	}
	fmt.Fprintf(Out, "%s %s\n", c.Sprint(label+":"), content)
}

// Chat labels.
const (
	UserLabel      = "👤 用户"
	AssistantLabel = "🤖 助手"
)

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)

	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Prompter reads lines from one buffered input.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewPrompter creates a prompter over in, writing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out}
}

// Prompt asks for one line of input. It returns io.EOF when input ends.
func (p *Prompter) Prompt(message string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", message)
	input, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// displayWidth counts wide runes twice so underlines fit CJK titles.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r >= 0x1100 {
			w += 2
			continue
		}
		w++
	}
	return w
}
