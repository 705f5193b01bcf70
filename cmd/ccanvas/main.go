package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ccanvas/ccanvas/pkg/broker"
	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/metrics"
	"github.com/ccanvas/ccanvas/pkg/paths"
	"github.com/ccanvas/ccanvas/pkg/term"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ccanvas <label> <command> [args...] [$ <label> <command> [args...]]...",
	Short: "ccanvas hosts terminal programs side by side under one broker",
	Long: `ccanvas is a local message broker for terminal applications. It
spawns one or more labeled programs as children of its root and
exchanges key presses, mouse actions, screen resizes, and inter-
component messages between them over a private Unix-socket protocol.

Separate multiple components with a literal $:

  ccanvas editor vim notes.txt $ sidebar tree .
`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	RunE:    runBroker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ccanvas version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("root", defaultSocketRoot(), "Directory holding this broker's socket tree")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables it)")

	cobra.OnInitialize(initLogging)
}

func defaultSocketRoot() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "ccanvas")
	}
	return filepath.Join(os.TempDir(), "ccanvas")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// componentGroup is one label/command/args group, as named by the
// "label cmd [args...]" segments the $ separator splits the argument
// list into.
type componentGroup struct {
	Label   string
	Command string
	Args    []string
}

// parseComponentGroups splits args on a literal "$" token into one
// group per hosted component. Each group must name at least a label
// and a command.
func parseComponentGroups(args []string) ([]componentGroup, error) {
	var groups []componentGroup
	var current []string
	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		if len(current) < 2 {
			return fmt.Errorf("component group %q needs a label and a command", current[0])
		}
		groups = append(groups, componentGroup{Label: current[0], Command: current[1], Args: append([]string{}, current[2:]...)})
		current = nil
		return nil
	}
	for _, a := range args {
		if a == "$" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		current = append(current, a)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return groups, nil
}

func runBroker(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("root")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	groups, err := parseComponentGroups(args)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return fmt.Errorf("at least one component is required, e.g. %s", color.YellowString("ccanvas <label> <command> [args...]"))
	}

	layout, err := paths.NewLayout(root)
	if err != nil {
		return fmt.Errorf("prepare socket directory: %w", err)
	}

	masterSock := filepath.Join(layout.Root, "master.sock")
	brk, err := broker.New(layout, masterSock)
	if err != nil {
		return fmt.Errorf("start broker: %w", err)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Errorf("metrics server error: %v", err)
			}
		}()
		fmt.Printf("%s metrics listening on %s\n", color.GreenString("✓"), metricsAddr)
	}

	for _, g := range groups {
		if _, err := brk.SpawnRoot(g.Label, g.Command, g.Args); err != nil {
			brk.Shutdown()
			return fmt.Errorf("spawn %q: %w", g.Label, err)
		}
		fmt.Printf("%s spawned %s (%s)\n", color.GreenString("✓"), color.CyanString(g.Label), g.Command)
	}

	if term.IsInputInteractive() {
		raw, err := term.EnterRaw()
		if err != nil {
			brk.Shutdown()
			return fmt.Errorf("enter raw mode: %w", err)
		}
		defer raw.Exit()
		fmt.Printf("%s raw input mode entered\n", color.GreenString("✓"))

		inputCtx, cancelInput := context.WithCancel(context.Background())
		defer cancelInput()

		go func() {
			for e := range term.ReadEvents(inputCtx, os.Stdin) {
				brk.DispatchInput(e)
			}
		}()

		resizeCh := make(chan os.Signal, 1)
		signal.Notify(resizeCh, syscall.SIGWINCH)
		go func() {
			for {
				select {
				case <-inputCtx.Done():
					return
				case <-resizeCh:
					size, err := term.GetSize()
					if err != nil {
						continue
					}
					brk.DispatchInput(events.Event{Kind: events.KindScreenResize, Resize: &events.ScreenResize{X: size.X, Y: size.Y}})
				}
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- brk.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println(color.CyanString("\nshutting down..."))
	case <-brk.Done():
		fmt.Println(color.CyanString("terminate requested, shutting down..."))
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("broker error: %v", err))
		}
	}

	brk.Shutdown()
	fmt.Println(color.GreenString("✓ shutdown complete"))
	return nil
}
