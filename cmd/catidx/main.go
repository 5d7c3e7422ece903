package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/davidvella/catidx"
	"github.com/davidvella/catidx/bgzf"
	"github.com/davidvella/catidx/lookup"
	"github.com/davidvella/catidx/metrics"
	"github.com/davidvella/catidx/server"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
)

const usage = `catidx - keyed indexes over BGZF compressed catalogs

Usage:
  catidx build  -catalog FILE -column N [-path P] -index DIR [options]
  catidx lookup -index DIR KEY...
  catidx get    -index DIR [-catalog FILE] KEY...
  catidx info   -index DIR
  catidx dump   -index DIR
  catidx serve  -index DIR [-catalog FILE] [-addr :8080]
  catidx bgzip  [-o FILE] [FILE]

Run "catidx <command> -h" for the options of a command.
`

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const defaultDelimiter = `\t`

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newCLI(os.Stdin, os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	return &cli{stdin: stdin, stdout: stdout, stderr: stderr}
}

// run executes one subcommand and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.stderr, usage)
		return exitUsage
	}

	commands := map[string]func(context.Context, []string) error{
		"build":  c.runBuild,
		"lookup": c.runLookup,
		"get":    c.runGet,
		"info":   c.runInfo,
		"dump":   c.runDump,
		"serve":  c.runServe,
		"bgzip":  c.runBgzip,
	}

	name := args[0]
	if name == "-h" || name == "-help" || name == "help" {
		fmt.Fprint(c.stdout, usage)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(c.stderr, "catidx: unknown command %q\n\n%s", name, usage)
		return exitUsage
	}

	if err := cmd(ctx, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(c.stderr, "catidx %s: %v\n", name, err)
		return exitFailure
	}
	return exitOK
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) newLogger(level string, asJSON bool) (*catidx.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return catidx.NewLogger(slog.NewJSONHandler(c.stderr, hopts)), nil
	}
	return catidx.NewLogger(slog.NewTextHandler(c.stderr, hopts)), nil
}

func (c *cli) runBuild(ctx context.Context, args []string) error {
	fs := c.flagSet("build")
	var (
		catalogPath = fs.String("catalog", "", "BGZF compressed catalog to index")
		column      = fs.Int("column", 0, "key column, 1-based; negative counts from the last column")
		path        = fs.String("path", "", "dotted JSON path of the key inside the column")
		index       = fs.String("index", "", "index directory to create or replace")
		delimiter   = fs.String("delimiter", defaultDelimiter, "column delimiter")
		batchSize   = fs.Int("batch-size", 10_000, "rows committed per batch")
		runSize     = fs.Int("run-size", 1_000_000, "index entries sorted in memory per spill run")
		queueSize   = fs.Int("queue-size", 1024, "entries buffered between scanning and staging")
		stagingDir  = fs.String("staging-dir", "", "directory for staging files and spill runs, defaults to the system temp dir")
		rateLimit   = fs.Int("rate-limit", 0, "compressed catalog bytes read per second, 0 for unlimited")
		logLevel    = fs.String("log-level", "info", "log level: debug, info, warn or error")
		logJSON     = fs.Bool("log-json", false, "write logs as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := c.newLogger(*logLevel, *logJSON)
	if err != nil {
		return err
	}

	opts := []catidx.Option{
		catidx.WithLogger(logger),
		catidx.WithBatchSize(*batchSize),
		catidx.WithRunSize(*runSize),
		catidx.WithQueueSize(*queueSize),
		catidx.WithScanRateLimit(*rateLimit),
	}
	if *stagingDir != "" {
		opts = append(opts, catidx.WithStagingDir(*stagingDir))
	}

	summary, err := catidx.Build(ctx, catidx.Config{
		Catalog:   *catalogPath,
		Column:    *column,
		Path:      *path,
		Dest:      *index,
		Delimiter: unescape(*delimiter),
	}, opts...)
	if err != nil {
		var be *catidx.BuildError
		if errors.As(err, &be) {
			fmt.Fprintf(c.stderr, "stage:   %s\nscanned: %d\nskipped: %d\nloaded:  %d\n",
				be.Stage, be.Scanned, be.Skipped, be.Loaded)
		}
		return err
	}

	fmt.Fprintf(c.stdout, "index:         %s\n", summary.Index)
	fmt.Fprintf(c.stdout, "scanned:       %d\n", summary.Scanned)
	fmt.Fprintf(c.stdout, "skipped:       %d\n", summary.Skipped)
	fmt.Fprintf(c.stdout, "published:     %d\n", summary.Published)
	fmt.Fprintf(c.stdout, "key type:      %s\n", summary.KeyType)
	fmt.Fprintf(c.stdout, "max key width: %d\n", summary.MaxKeyWidth)
	fmt.Fprintf(c.stdout, "elapsed:       %s\n", summary.Elapsed)
	return nil
}

// unescape lets a tab delimiter be typed as \t on the command line.
func unescape(s string) string {
	return strings.NewReplacer(`\t`, "\t", `\n`, "\n").Replace(s)
}

func openIndex(fs *flag.FlagSet, args []string, index *string) (*lookup.Engine, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *index == "" {
		return nil, errors.New("-index is required")
	}
	return lookup.Open(*index)
}

func (c *cli) runLookup(ctx context.Context, args []string) error {
	fs := c.flagSet("lookup")
	index := fs.String("index", "", "index directory")
	eng, err := openIndex(fs, args, index)
	if err != nil {
		return err
	}
	defer eng.Close()

	w := bufio.NewWriter(c.stdout)
	for _, key := range fs.Args() {
		offsets, err := eng.LookupString(ctx, key)
		if err != nil {
			return err
		}
		for _, off := range offsets {
			fmt.Fprintf(w, "%s\t%d\n", key, off)
		}
	}
	return w.Flush()
}

func (c *cli) runGet(ctx context.Context, args []string) error {
	fs := c.flagSet("get")
	index := fs.String("index", "", "index directory")
	catalogPath := fs.String("catalog", "", "catalog to read records from, defaults to the indexed catalog")
	eng, err := openIndex(fs, args, index)
	if err != nil {
		return err
	}
	defer eng.Close()

	if *catalogPath == "" {
		*catalogPath = eng.Info().Catalog
	}
	res, err := lookup.OpenResolver(*catalogPath)
	if err != nil {
		return err
	}
	defer res.Close()

	w := bufio.NewWriter(c.stdout)
	for _, key := range fs.Args() {
		offsets, err := eng.LookupString(ctx, key)
		if err != nil {
			return err
		}
		lines, err := res.Lines(ctx, offsets)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
	return w.Flush()
}

func (c *cli) runInfo(_ context.Context, args []string) error {
	fs := c.flagSet("info")
	index := fs.String("index", "", "index directory")
	eng, err := openIndex(fs, args, index)
	if err != nil {
		return err
	}
	defer eng.Close()

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(eng.Info())
}

func (c *cli) runDump(ctx context.Context, args []string) error {
	fs := c.flagSet("dump")
	index := fs.String("index", "", "index directory")
	eng, err := openIndex(fs, args, index)
	if err != nil {
		return err
	}
	defer eng.Close()

	w := bufio.NewWriter(c.stdout)
	entries, errf := eng.All(ctx)
	for e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%d\n", e.Key, e.Row, e.Offset)
	}
	if err := errf(); err != nil {
		return err
	}
	return w.Flush()
}

func (c *cli) runServe(ctx context.Context, args []string) error {
	fs := c.flagSet("serve")
	var (
		index       = fs.String("index", "", "index directory")
		catalogPath = fs.String("catalog", "", "catalog to read records from, defaults to the indexed catalog")
		addr        = fs.String("addr", ":8080", "listen address")
		logLevel    = fs.String("log-level", "info", "log level: debug, info, warn or error")
		logJSON     = fs.Bool("log-json", false, "write logs as JSON")
	)
	eng, err := openIndex(fs, args, index)
	if err != nil {
		return err
	}
	defer eng.Close()

	logger, err := c.newLogger(*logLevel, *logJSON)
	if err != nil {
		return err
	}

	if *catalogPath == "" {
		*catalogPath = eng.Info().Catalog
	}
	res, err := lookup.OpenResolver(*catalogPath)
	if err != nil {
		return err
	}
	defer res.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(eng,
		server.WithResolver(res),
		server.WithMetrics(metrics.NewRegistry()),
		server.WithLogger(logger.WithIndex(*index).Logger),
	)
	return srv.ListenAndServe(ctx, *addr)
}

func (c *cli) runBgzip(_ context.Context, args []string) (err error) {
	fs := c.flagSet("bgzip")
	out := fs.String("o", "", "output file, defaults to stdout")
	level := fs.Int("level", 6, "compression level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := c.stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	dst := c.stdout
	var outFile *os.File
	if *out != "" {
		outFile, err = os.Create(*out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := outFile.Close(); err == nil {
				err = cerr
			}
		}()
		dst = outFile
	}

	bw := bufio.NewWriterSize(dst, 1<<20)
	w, err := bgzf.NewWriter(bw, bgzf.WithLevel(*level))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if outFile != nil {
		return outFile.Sync()
	}
	return nil
}
