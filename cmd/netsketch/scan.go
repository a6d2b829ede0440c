package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netsketch/internal/adapter"
	"netsketch/internal/service"
)

var (
	scanDB     string
	scanQuiet  bool
	importFmt  string
	outputFmt  string
	localDBDoc = "SQLite database to store the scan in (default: in-memory)"
)

var scanCmd = &cobra.Command{
	Use:   "scan [prefix]",
	Short: "Sweep a /24 and print the device tree",
	Long: `Probes hosts of a /24 over HTTP and prints the sanitized device tree as JSON.

The prefix may be given as "192.168.1.", "192.168.1" or "192.168.1.0/24".
Without a prefix the host's own /24 is used, preferring private networks.
Progress is written to stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prefix, err := resolvePrefix(args)
		if err != nil {
			return err
		}

		bus := service.NewEventBus()
		svc, closeRepo, err := newService(ctx, localDB(scanDB), bus)
		if err != nil {
			return err
		}
		defer closeRepo()

		stop := func() {}
		if !scanQuiet {
			stop = watchProgress(bus)
		}
		scan, err := svc.ProbeSubnet(ctx, prefix)
		stop()
		if err != nil {
			return err
		}
		return printTree(ctx, svc, scan.ID, cmd.OutOrStdout())
	},
}

func resolvePrefix(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	found, err := adapter.DetectPrefixes()
	if err != nil {
		return "", fmt.Errorf("detect local networks: %w", err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no local IPv4 network found, pass a prefix")
	}
	logger.Info("using local network",
		zap.String("prefix", found[0].Prefix),
		zap.String("interface", found[0].Interface))
	return found[0].Prefix, nil
}

// watchProgress renders progress events on stderr until the returned stop
// function is called
func watchProgress(bus *service.EventBus) (stop func()) {
	events := make(chan service.Event, 64)
	bus.Subscribe(events)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportProgress(events)
	}()
	return func() {
		bus.Unsubscribe(events)
		close(events)
		<-done
	}
}

func reportProgress(events <-chan service.Event) {
	for e := range events {
		if e.Type != service.EventScanProgress {
			continue
		}
		p, ok := e.Payload.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stderr, "\rprobed %v/%v  found %v  (%.0f%%)", p["probed"], p["total"], p["found"], p["percent"])
	}
	fmt.Fprintln(os.Stderr)
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Sanitize a device file and print it",
	Long: `Reads devices from a JSON, YAML, Ansible inventory or ARP table file,
sanitizes them into one tree and prints the result.

Use "-" to read from stdin. The input format defaults to the file extension.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format := importFmt
		if format == "" {
			format = formatFromPath(args[0])
		}

		in := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		svc, closeRepo, err := newService(ctx, localDB(scanDB), nil)
		if err != nil {
			return err
		}
		defer closeRepo()

		scan, err := svc.Import(ctx, format, in)
		if err != nil {
			return err
		}
		if outputFmt == "tree" {
			return printTree(ctx, svc, scan.ID, cmd.OutOrStdout())
		}
		return svc.Export(ctx, scan.ID, outputFmt, cmd.OutOrStdout())
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract devices from pasted text such as arp -a output",
	Long: `Reads free text from a file or stdin and extracts devices. The model is
tried first when configured; the offline ARP parser is used otherwise or when
the model fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var (
			raw []byte
			err error
		)
		if len(args) == 0 || args[0] == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		svc, closeRepo, err := newService(ctx, localDB(scanDB), nil)
		if err != nil {
			return err
		}
		defer closeRepo()

		scan, err := svc.ParseText(ctx, string(raw))
		if err != nil {
			return err
		}
		return printTree(ctx, svc, scan.ID, cmd.OutOrStdout())
	},
}

func init() {
	for _, c := range []*cobra.Command{scanCmd, importCmd, parseCmd} {
		c.Flags().StringVar(&scanDB, "db", "", localDBDoc)
	}
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "do not report progress")

	importCmd.Flags().StringVarP(&importFmt, "format", "f", "", "input format: arp, text, json, yaml, ansible")
	importCmd.Flags().StringVarP(&outputFmt, "output", "o", "tree", "output: tree, json, yaml, ansible")
}

func localDB(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func formatFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return "json"
	case strings.Contains(lower, "inventory"), strings.Contains(lower, "hosts"):
		return "ansible"
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return "yaml"
	default:
		return "arp"
	}
}
