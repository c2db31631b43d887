// Command pdftool runs the document operations from the command line.
//
//	pdftool [-v] [-out dir] [-password pw] <command> [flags] <input>...
//
// Every output is written to a fresh timestamped name and never replaces an
// existing file. When PDFSTUDIO_REDIS_ADDR is set outputs go to redis
// instead, and the printed ids are redis keys.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/store"
)

type command struct {
	usage string
	run   func(a *app, args []string) error
}

var commands = map[string]command{
	"merge":       {"merge [-name base] <a.pdf> <b.pdf>...", runMerge},
	"split":       {"split (-ranges 1-3,4-6 | -every n) <in.pdf>", runSplit},
	"extract":     {"extract -pages 1,3-5 <in.pdf>", runExtract},
	"reorder":     {"reorder -order 3,1,2 <in.pdf>", runReorder},
	"delete":      {"delete -pages 2,4 <in.pdf>", runDelete},
	"rotate":      {"rotate -angle 90 [-pages 1-3] [-relative] <in.pdf>", runRotate},
	"watermark":   {"watermark -text DRAFT [flags] <in.pdf>", runWatermark},
	"pagenumbers": {"pagenumbers [-format page-n-of-total] [-position bottom-center] <in.pdf>", runPageNumbers},
	"text":        {"text -page 1 -x 50 -y 700 -text hello [flags] <in.pdf>", runText},
	"image":       {"image -page 1 -image pic.png -x 50 -y 50 [flags] <in.pdf>", runImage},
	"sign":        {"sign -page 1 -image sig.png -x 50 -y 50 [-name n] [-date d] <in.pdf>", runSign},
	"convert":     {"convert [-name base] <a.png> <b.jpg>...", runConvert},
	"protect":     {"protect -new-password pw [-owner-password pw] <in.pdf>", runProtect},
	"compress":    {"compress [-quality 75] [-max-pixels n] [-ppi 150] <in.pdf>", runCompress},
	"repair":      {"repair <in.pdf>", runRepair},
	"info":        {"info <in.pdf>", runInfo},
	"encode":      {"encode <in.pdf>", runEncode},
	"decode":      {"decode [-name base] <in.b64>", runDecode},
}

// usageError marks bad invocations, which exit with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type app struct {
	ctx      context.Context
	logger   observability.Logger
	store    store.Store
	password string
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("pdftool", flag.ContinueOnError)
	global.SetOutput(stderr)
	verbose := global.Bool("v", false, "Enable debug logging")
	outDir := global.String("out", ".", "Directory for output files")
	password := global.String("password", "", "Password to open encrypted inputs")
	global.Usage = func() { printUsage(stderr, global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		printUsage(stderr, global)
		return 2
	}
	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "pdftool: unknown command %q\n", name)
		printUsage(stderr, global)
		return 2
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	logger := observability.NewLogrus(log).With(observability.String("command", name))

	a := &app{ctx: ctx, logger: logger, password: *password, stdout: stdout, stderr: stderr}
	st, closeStore, err := openStore(ctx, *outDir, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s failed: %v\n", name, err)
		return 1
	}
	defer closeStore()
	a.store = st

	if err := cmd.run(a, global.Args()[1:]); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) || errors.Is(err, flag.ErrHelp) {
			if !errors.Is(err, flag.ErrHelp) {
				fmt.Fprintf(stderr, "%s: %v\n", name, err)
			}
			fmt.Fprintf(stderr, "usage: pdftool %s\n", cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "%s failed: %v\n", name, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "usage: pdftool [flags] <command> [command flags] <input>...")
	global.PrintDefaults()
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "commands:")
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", commands[n].usage)
	}
}

func openStore(ctx context.Context, dir string, logger observability.Logger) (store.Store, func(), error) {
	if addr := os.Getenv("PDFSTUDIO_REDIS_ADDR"); addr != "" {
		rs, err := store.NewRedisStore(ctx, addr, os.Getenv("PDFSTUDIO_REDIS_PASSWORD"), 0)
		if err != nil {
			return nil, nil, err
		}
		rs.Logger = logger
		logger.Debug("using redis store", observability.String("addr", addr))
		return rs, func() { rs.Close() }, nil
	}
	return &store.FileStore{Dir: dir, Logger: logger}, func() {}, nil
}

// flags returns a flag set for one command. Parse errors are already
// reported on stderr.
func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses args and checks the positional argument count. maxArgs < 0
// means no upper bound.
func (a *app) parse(fs *flag.FlagSet, args []string, minArgs, maxArgs int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	switch n := fs.NArg(); {
	case n < minArgs:
		return usagef("expected at least %d input file(s), got %d", minArgs, n)
	case maxArgs >= 0 && n > maxArgs:
		return usagef("unexpected arguments: %s", strings.Join(fs.Args()[maxArgs:], " "))
	}
	return nil
}

func (a *app) load(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts := []document.LoadOption{document.WithLogger(a.logger.With(observability.String("input", path)))}
	if a.password != "" {
		opts = append(opts, document.WithPassword(a.password))
	}
	doc, err := document.Load(a.ctx, data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// save serializes doc and stores it under a fresh name derived from base.
func (a *app) save(base string, doc *document.Document, opts document.SaveOptions) error {
	data, err := doc.Save(a.ctx, opts)
	if err != nil {
		return err
	}
	return a.put(base, data)
}

func (a *app) put(base string, data []byte) error {
	id, err := a.store.Put(a.ctx, base, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}
