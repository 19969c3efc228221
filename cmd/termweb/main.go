package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/teamchong/termweb/pkg/cdp"
	"github.com/teamchong/termweb/pkg/kitty"
	"github.com/teamchong/termweb/pkg/screencast"
	"github.com/teamchong/termweb/pkg/termio"
	"github.com/teamchong/termweb/pkg/viewer"
)

// Exit codes, part of the CLI contract.
const (
	exitOK          = 0
	exitUsage       = 1
	exitNoBrowser   = 2
	exitBadTerminal = 3
)

var errTerminalUnsupported = errors.New("this terminal does not support the Kitty graphics protocol")

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "termweb",
		Short: "Browse the web inside your terminal",
		Long: `termweb drives a local headless Chromium over the DevTools protocol
and renders the live page in any Kitty-graphics-capable terminal
(Kitty, Ghostty, WezTerm), with full keyboard and mouse support.`,
		Example: `  # Open a page
  termweb open https://example.com

  # Cap the frame rate and hide the toolbar
  termweb open --fps 24 --no-toolbar https://example.com

  # Check your terminal and browser setup
  termweb doctor`,
		SilenceUsage: true,
	}

	openCmd := &cobra.Command{
		Use:   "open <url>",
		Short: "Open a URL in the terminal browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(cmd.Context(), cfg, cmd.Flags().Changed, args[0])
		},
	}
	openCmd.Flags().IntVar(&cfg.FPS, "fps", 0, "Cap the frame rate (0 = auto by resolution)")
	openCmd.Flags().IntVar(&cfg.Quality, "quality", int(screencast.QualityHigh), "Stream quality tier 0-3")
	openCmd.Flags().BoolVar(&cfg.NoToolbar, "no-toolbar", false, "Hide the navigation toolbar")
	openCmd.Flags().BoolVar(&cfg.DisableHotkeys, "disable-hotkeys", false, "Forward all keys to the page")
	openCmd.Flags().BoolVar(&cfg.DisableHints, "disable-hints", false, "Suppress startup hints")
	openCmd.Flags().BoolVar(&cfg.Headed, "headed", false, "Show the Chromium window too")
	openCmd.Flags().StringVar(&cfg.Profile, "profile", "", "Chromium user data directory")
	openCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Write a debug log")
	openCmd.Flags().StringVar(&cfg.DebugAddr, "debug-addr", "", "Serve pprof/expvar on this address")

	rootCmd.AddCommand(openCmd, doctorCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := fang.Execute(ctx, rootCmd,
		fang.WithVersion("v0.3.0"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	)
	if err != nil {
		switch {
		case errors.Is(err, cdp.ErrBrowserNotFound):
			os.Exit(exitNoBrowser)
		case errors.Is(err, errTerminalUnsupported):
			os.Exit(exitBadTerminal)
		default:
			os.Exit(exitUsage)
		}
	}
	os.Exit(exitOK)
}

func runOpen(ctx context.Context, cfg Config, changed func(string) bool, url string) error {
	cfg = loadConfigFile(cfg, changed)
	applyEnvOverrides(&cfg)

	if !kitty.SupportsGraphics() {
		return errTerminalUnsupported
	}

	log, closeLog := setupLogging(cfg)
	defer closeLog()

	if cfg.DebugAddr != "" {
		if err := setupDebugHandlers(cfg.DebugAddr); err != nil {
			log.Warn("debug listener failed", "err", err)
		}
	}

	term, err := termio.Open()
	if err != nil {
		return errors.Wrap(err, "open terminal")
	}
	defer term.Close()

	g := term.Geometry()
	toolbarPx := g.ToolbarHeightPx()
	if cfg.NoToolbar {
		toolbarPx = 0
	}

	browser, err := cdp.Launch(ctx, cdp.LaunchOptions{
		URL:         url,
		Width:       g.WidthPx / g.DPR,
		Height:      (g.HeightPx - toolbarPx) / g.DPR,
		Headless:    !cfg.Headed,
		UsePipe:     true,
		UserDataDir: cfg.Profile,
		Log:         log,
	})
	if err != nil {
		return err
	}
	defer browser.Close()

	downloadDir, err := os.MkdirTemp("", "termweb-downloads-*")
	if err == nil {
		defer os.RemoveAll(downloadDir)
		if derr := browser.Client.SetDownloadBehavior(ctx, downloadDir); derr != nil {
			log.Debug("download staging unavailable", "err", derr)
		}
	}

	v := viewer.New(term, browser.Client, viewer.Options{
		StartURL:       url,
		FPSCap:         cfg.FPS,
		Quality:        screencast.QualityTier(cfg.Quality).Clamp(),
		NoToolbar:      cfg.NoToolbar,
		DisableHotkeys: cfg.DisableHotkeys,
		DisableHints:   cfg.DisableHints,
		NaturalScroll:  cfg.naturalScroll(),
		AllowedRoots:   cfg.AllowedRoots,
		DownloadDir:    downloadDir,
		Log:            log,
	})

	err = v.Run(ctx)
	if errors.Is(err, cdp.ErrClosed) || errors.Is(err, context.Canceled) {
		// Browser went away or the user interrupted: an orderly end.
		return nil
	}
	return err
}
