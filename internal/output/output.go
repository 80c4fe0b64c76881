package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37")) // dark green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"arrow":   "→",
}

// Printer writes status messages for humans. Styling is applied only when
// the destination is a terminal so redirected stderr stays plain.
type Printer struct {
	W      io.Writer
	Styled bool
}

// NewPrinter returns a Printer on w, styled if w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{W: w, Styled: styled}
}

var stderr = NewPrinter(os.Stderr)

func (p *Printer) render(style lipgloss.Style, symbol, text string) string {
	line := StyleSymbols[symbol] + " " + text
	if !p.Styled {
		return line
	}
	return style.Render(line)
}

func (p *Printer) Success(text string) {
	fmt.Fprintln(p.W, p.render(successStyle, "pass", text))
}

func (p *Printer) Error(text string) {
	fmt.Fprintln(p.W, p.render(errorStyle, "fail", text))
}

func (p *Printer) Warning(text string) {
	fmt.Fprintln(p.W, p.render(warningStyle, "warning", text))
}

func (p *Printer) Detail(text string) {
	fmt.Fprintln(p.W, p.render(detailStyle, "arrow", text))
}

func PrintSuccess(text string) { stderr.Success(text) }
func PrintError(text string)   { stderr.Error(text) }
func PrintWarning(text string) { stderr.Warning(text) }
func PrintDetail(text string)  { stderr.Detail(text) }
