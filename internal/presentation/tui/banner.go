package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the Parley banner and version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`  ___  __ _ _ __| | ___ _   _ `, "#818cf8"},
		{` | _ \/ _' | '__| |/ _ \ | | |`, "#a78bfa"},
		{` |  _/ (_| | |  | |  __/ |_| |`, "#c084fc"},
		{` |_|  \__,_|_|  |_|\___|\__, |`, "#e879f9"},
		{`                        |___/ `, "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
