// cmd_display.go - Ausgabe-Funktionen
// Hauptfunktionen: printWrapped, wrapText, terminalWidth
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// terminalWidth - Breite des Terminals, 0 wenn die Ausgabe kein Terminal ist
func terminalWidth(cmd *cobra.Command) int {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// printWrapped - Gibt Text mit Word-Wrap auf Terminalbreite aus
func printWrapped(cmd *cobra.Command, text string) {
	nowrap, _ := cmd.Flags().GetBool("nowordwrap")
	if width := terminalWidth(cmd); !nowrap && width >= 10 {
		text = wrapText(text, width-5)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
}

// wrapText - Bricht an Leerzeichen um, sodass keine Zeile breiter als width ist.
// Einzelne Woerter ueber width bleiben ungeteilt.
func wrapText(text string, width int) string {
	var sb strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}

		lineWidth := 0
		for j, word := range strings.Fields(line) {
			w := runewidth.StringWidth(word)
			switch {
			case j == 0:
			case lineWidth+1+w > width:
				sb.WriteByte('\n')
				lineWidth = 0
			default:
				sb.WriteByte(' ')
				lineWidth++
			}
			sb.WriteString(word)
			lineWidth += w
		}
	}
	return sb.String()
}
