package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/atikulmunna/loomwatch/internal/alert"
	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// Renderer writes alerts to an output stream.
type Renderer interface {
	Render(a model.Alert) error
}

// New returns the renderer for the named format ("text" or "json").
func New(format string, w io.Writer) Renderer {
	if strings.EqualFold(format, "json") {
		return NewJSONRenderer(w)
	}
	return NewTextRenderer(w)
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleFailover = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("208")).
			Bold(true) // white on orange
	styleErrorRate = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("196")).
			Bold(true) // white on red
	styleOther = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleTime  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
)

// TextRenderer prints alerts to the terminal with kind-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(a model.Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s",
		styleTime.Render(a.Timestamp.Format("15:04:05")),
		styleKindTag(a.Kind),
		a.Summary)
	for _, k := range alert.SortedKeys(a.Metadata) {
		fmt.Fprintf(&b, "\n    %s %s", styleKey.Render(k+":"), a.Metadata[k])
	}
	_, err := fmt.Fprintln(r.w, b.String())
	return err
}

func styleKindTag(kind model.AlertKind) string {
	padded := fmt.Sprintf(" %-10s ", strings.ToUpper(string(kind)))
	switch kind {
	case model.KindFailover:
		return styleFailover.Render(padded)
	case model.KindErrorRate:
		return styleErrorRate.Render(padded)
	default:
		return styleOther.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each alert as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(a model.Alert) error {
	return r.enc.Encode(a)
}
