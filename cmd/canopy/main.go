package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/config"
	"github.com/vanderheijden86/canopy/pkg/export"
	"github.com/vanderheijden86/canopy/pkg/ui"
	"github.com/vanderheijden86/canopy/pkg/version"
)

const usageLine = "usage: canopy [flags] /path/to/store"

func main() {
	os.Exit(run())
}

func run() int {
	cpuProfile := flag.String("cpuprofile", "", "write CPU profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	versionFlag := flag.Bool("version", false, "print version and exit")
	packOut := flag.String("pack", "", "export the store to a canopy pack at this path, then exit")
	snapshotFlag := flag.Bool("snapshot", false, "run the plot snapshot wizard instead of the TUI")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usageLine)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("canopy %s\n", version.Version)
		return 0
	}

	// Wrong argument count is the one failure that exits before the UI;
	// everything after open is reported inside the session.
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usageLine)
		return 1
	}
	storePath := flag.Arg(0)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not create CPU profile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "could not start CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}
	if *memProfile != "" {
		defer writeHeapProfile(*memProfile)
	}

	cfg, err := config.Load()
	if err != nil {
		// Non-fatal: a broken config file degrades to defaults.
		fmt.Fprintf(os.Stderr, "config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	reader, srcType, err := store.Open(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		return 1
	}
	defer reader.Close()

	if *packOut != "" {
		stats, err := export.WritePack(context.Background(), reader, storePath, *packOut, export.PackOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "pack: %v\n", err)
			return 1
		}
		fmt.Printf("packed %d groups and %d datasets (%d elements) into %s in %s\n",
			stats.Groups, stats.Datasets, stats.Elements, *packOut, stats.Elapsed.Round(time.Millisecond))
		return 0
	}

	if *snapshotFlag {
		wiz := export.NewSnapshotWizard(reader, storePath, cfg)
		if err := wiz.Run(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
			return 1
		}
		return 0
	}

	m := ui.NewModel(reader, storePath, srcType, cfg)
	defer m.Stop()

	if err := runTUIProgram(m); err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		return 1
	}
	return 0
}

func writeHeapProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create heap profile: %v\n", err)
		return
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(os.Stderr, "could not write heap profile: %v\n", err)
	}
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM: ask the program to quit, then
	// escalate to Kill after a grace period.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set CANOPY_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("CANOPY_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()

				select {
				case <-runDone:
					return
				case <-time.After(2 * time.Second):
				}

				p.Kill()
			}()
		}
	}

	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted)) {
		return nil
	}
	return err
}
