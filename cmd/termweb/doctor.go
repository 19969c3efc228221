package main

import (
	"fmt"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teamchong/termweb/pkg/cdp"
	"github.com/teamchong/termweb/pkg/kitty"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
	headStyle = lipgloss.NewStyle().Bold(true)
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check terminal and browser requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headStyle.Render("termweb doctor"))
			fmt.Fprintln(out)

			ok := true

			id := kitty.DetectTerminal()
			if kitty.SupportsGraphics() {
				fmt.Fprintf(out, "%s terminal: %s (kitty graphics protocol)\n", okStyle.Render("✓"), id)
			} else {
				ok = false
				fmt.Fprintf(out, "%s terminal: %s — needs Kitty, Ghostty, or WezTerm\n", badStyle.Render("✗"), id)
			}

			if kitty.SHMAllowed() {
				fmt.Fprintf(out, "%s shared-memory fast path available\n", okStyle.Render("✓"))
			} else {
				fmt.Fprintf(out, "%s shared-memory path off, using base64 %s\n",
					dimStyle.Render("-"), dimStyle.Render("(fine, just slower)"))
			}

			if bin, err := cdp.FindBrowser(); err == nil {
				fmt.Fprintf(out, "%s browser: %s\n", okStyle.Render("✓"), bin)
			} else {
				ok = false
				fmt.Fprintf(out, "%s no Chromium-family browser found — install one or set CHROME_BIN\n", badStyle.Render("✗"))
			}

			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				fmt.Fprintf(out, "%s terminal size: %dx%d cells\n", okStyle.Render("✓"), w, h)
			}

			if path := configPath(); path != "" {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "%s config: %s\n", okStyle.Render("✓"), path)
				} else {
					fmt.Fprintf(out, "%s config: none (%s)\n", dimStyle.Render("-"), dimStyle.Render(path))
				}
			}

			fmt.Fprintln(out)
			if !ok {
				fmt.Fprintln(out, badStyle.Render("some requirements are missing"))
				return fmt.Errorf("environment not ready")
			}
			fmt.Fprintln(out, okStyle.Render("ready to browse"))
			return nil
		},
	}
}
