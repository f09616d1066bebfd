package style

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Attr int

const (
	Reset  Attr = 0
	Bold   Attr = 1
	Dim    Attr = 2
	Red    Attr = 31
	Green  Attr = 32
	Yellow Attr = 33
	Blue   Attr = 34
	Cyan   Attr = 36
)

var (
	// Respect https://no-color.org/.
	noColor = os.Getenv("NO_COLOR") != ""

	isTTY      = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	isColor    = isTTY && !noColor
	isErrTTY   = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	isErrColor = isErrTTY && !noColor
)

func IsStdoutTTY() bool         { return isTTY }
func StdoutSupportsColor() bool { return isColor }
func StderrSupportsColor() bool { return isErrColor }

// Stdout returns stdout that understands escape sequences on every platform.
func Stdout() io.Writer { return colorable.NewColorableStdout() }

func seq(as []Attr) string {
	if len(as) == 0 {
		return "\033[0m"
	}
	var b strings.Builder
	_, _ = b.WriteString("\033[")
	for i, a := range as {
		if i != 0 {
			_ = b.WriteByte(';')
		}
		_, _ = b.WriteString(strconv.Itoa(int(a)))
	}
	_ = b.WriteByte('m')
	return b.String()
}

func S(as ...Attr) string {
	if isColor {
		return seq(as)
	}
	return ""
}

func SE(as ...Attr) string {
	if isErrColor {
		return seq(as)
	}
	return ""
}

func WithS(s string, as ...Attr) string  { return S(as...) + s + S() }
func WithSE(s string, as ...Attr) string { return SE(as...) + s + SE() }

// Place picks the highlighting for a standings place. Unplaced entries are dimmed.
func Place(place *int) []Attr {
	switch {
	case place == nil:
		return []Attr{Dim}
	case *place == 1:
		return []Attr{Bold, Yellow}
	case *place <= 3:
		return []Attr{Bold}
	default:
		return nil
	}
}
