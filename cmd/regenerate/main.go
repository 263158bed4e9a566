package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"media-conversions/internal/conversion"
	"media-conversions/internal/database"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/generator"
	"media-conversions/internal/imageproc"
	"media-conversions/internal/logging"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
	"media-conversions/internal/responsive"
	"media-conversions/internal/startup"
)

const vacuumTimeout = 10 * time.Minute

// creator runs conversions for one media item.
type creator interface {
	CreateDerivedFiles(ctx context.Context, m *media.Media, opts manipulator.Options) (manipulator.Results, error)
}

// app holds what the commands share.
type app struct {
	store    media.Store
	resolver *conversion.Resolver
	manip    creator
	fs       *filesystem.Filesystem
	out      io.Writer
	color    bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run opens the shared state, executes one command and returns the exit
// code. Deferred cleanup happens before main exits.
func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stdout)
		return 1
	}
	command, args := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage(os.Stdout)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if os.Getenv("LOG_LEVEL") == "" {
		logging.SetLevel(logging.LevelWarn)
	}
	config, err := startup.ReadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	repo, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", config.DatabaseDir)
		return 1
	}
	defer func() {
		if err := repo.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	if command == "vacuum" {
		if err := vacuum(ctx, repo); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	a, err := newApp(ctx, config, repo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer imageproc.ShutdownVips()
	return a.dispatch(ctx, command, args)
}

func newApp(ctx context.Context, config *startup.Config, repo *database.Repository) (*app, error) {
	registry, err := conversion.LoadFile(config.ConversionsFile, config.QueueConversionsByDefault)
	if err != nil {
		return nil, err
	}
	resolver := conversion.NewResolver(registry)

	processor, err := imageproc.New(config.ImageDriver)
	if err != nil {
		return nil, err
	}
	disks, err := filesystem.OpenDisks(ctx, config.Disks)
	if err != nil {
		return nil, err
	}
	fs := filesystem.New(disks, pathgen.Default{})

	// No dispatcher: queued conversions run inline.
	manip := manipulator.New(manipulator.Deps{
		Store:      repo,
		Resolver:   resolver,
		Generators: generator.NewRegistry(generator.Image{}, generator.Webp{}, generator.NewVideo(config.FFmpegPath, config.FFprobePath)),
		Processor:  processor,
		Filesystem: fs,
		Responsive: responsive.NewGenerator(fs, repo, processor, responsive.Options{
			TinyPlaceholders: config.UseTinyPlaceholders,
			TempDir:          config.TempDir,
		}),
	}, manipulator.Config{TempDir: config.TempDir, Timeout: config.ConversionTimeout})

	return &app{
		store:    repo,
		resolver: resolver,
		manip:    manip,
		fs:       fs,
		out:      os.Stdout,
		color:    term.IsTerminal(int(os.Stdout.Fd())),
	}, nil
}

// dispatch runs a command and returns the exit code.
func (a *app) dispatch(ctx context.Context, command string, args []string) int {
	switch command {
	case "regenerate":
		flags := flag.NewFlagSet("regenerate", flag.ContinueOnError)
		flags.SetOutput(a.out)
		missing := flags.Bool("missing", false, "only generate conversions that are missing")
		only := flags.String("only", "", "comma separated conversion names")
		responsiveImages := flags.Bool("responsive", false, "also regenerate responsive images of the original")
		if err := flags.Parse(args); err != nil {
			return 2
		}
		ids, err := parseIDs(flags.Args())
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
			return 2
		}
		opts := manipulator.Options{OnlyMissing: *missing, WithResponsiveImages: *responsiveImages}
		if *only != "" {
			opts.Only = strings.Split(*only, ",")
		}
		return a.regenerate(ctx, ids, opts)

	case "clean", "list":
		flags := flag.NewFlagSet(command, flag.ContinueOnError)
		flags.SetOutput(a.out)
		dryRun := flags.Bool("dry-run", false, "report what clean would delete")
		if err := flags.Parse(args); err != nil {
			return 2
		}
		ids, err := parseIDs(flags.Args())
		if err != nil || len(ids) != 1 {
			fmt.Fprintf(a.out, "Error: %s takes exactly one media id\n", command)
			return 2
		}
		if command == "list" {
			err = a.list(ctx, ids[0])
		} else {
			err = a.clean(ctx, ids[0], *dryRun)
		}
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
			return 1
		}
		return 0

	default:
		fmt.Fprintf(a.out, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(a.out)
		return 2
	}
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("no media ids given")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid media id %q", sanitizeCommand(arg))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// regenerate runs the conversions of every id. A failure does not stop the
// remaining ids; the exit code is 1 if anything failed.
func (a *app) regenerate(ctx context.Context, ids []int64, opts manipulator.Options) int {
	code := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			fmt.Fprintln(a.out, "Interrupted")
			return 130
		}
		m, err := a.store.Get(ctx, id)
		if err != nil {
			fmt.Fprintf(a.out, "%s media %d: %v\n", a.mark(false), id, err)
			code = 1
			continue
		}
		results, err := a.manip.CreateDerivedFiles(ctx, m, opts)
		if err != nil {
			fmt.Fprintf(a.out, "%s media %d: %v\n", a.mark(false), id, err)
			code = 1
			continue
		}
		if len(results) == 0 {
			fmt.Fprintf(a.out, "%s media %d: nothing to do\n", a.mark(true), id)
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(a.out, "%s media %d %s: %v\n", a.mark(false), id, r.Conversion, r.Err)
				code = 1
				continue
			}
			fmt.Fprintf(a.out, "%s media %d %s: %s in %v\n", a.mark(true), id, r.Conversion, r.Status, r.Duration.Round(time.Millisecond))
		}
	}
	return code
}

// list prints the conversions of a media item and their files.
func (a *app) list(ctx context.Context, id int64) error {
	m, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	convs, err := a.resolver.ForMedia(m)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Media %d: %s (%s, %s, collection %s)\n", m.ID, m.FileName, m.MimeType, m.HumanReadableSize(), m.CollectionName)
	if m.IsTrashed() {
		fmt.Fprintln(a.out, "  trashed")
	}
	applicable := convs.ForCollection(m.CollectionName)
	if applicable.IsEmpty() {
		fmt.Fprintln(a.out, "  no conversions")
	}
	for _, c := range applicable.All() {
		mode := "sync"
		if c.ShouldBeQueued() {
			mode = "queued"
		}
		fmt.Fprintf(a.out, "  %s %-20s %-6s %s\n", a.mark(m.HasGeneratedConversion(c.Name())), c.Name(), mode, c.ConversionFileName(m.FileName))
	}
	for key, set := range m.ResponsiveImages {
		fmt.Fprintf(a.out, "  responsive %s: %d files\n", key, len(set.URLs))
	}
	return nil
}

// clean deletes conversion files that no declared conversion produces and
// responsive images the record no longer references.
func (a *app) clean(ctx context.Context, id int64, dryRun bool) error {
	m, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	convs, err := a.resolver.ForMedia(m)
	if err != nil {
		return err
	}
	disk, err := a.fs.DiskFor(m, filesystem.KindConversion)
	if err != nil {
		return err
	}

	keep := map[string]bool{}
	for _, name := range convs.ConversionFiles(m.FileName) {
		keep[name] = true
	}
	stale, err := a.unreferenced(ctx, disk, a.fs.Paths().PathForConversions(m), keep)
	if err != nil {
		return err
	}
	kinds := make([]filesystem.Kind, len(stale))
	for i := range kinds {
		kinds[i] = filesystem.KindConversion
	}

	keep = map[string]bool{}
	for _, set := range m.ResponsiveImages {
		for _, name := range set.URLs {
			keep[name] = true
		}
	}
	staleResponsive, err := a.unreferenced(ctx, disk, a.fs.Paths().PathForResponsiveImages(m), keep)
	if err != nil {
		return err
	}
	for range staleResponsive {
		kinds = append(kinds, filesystem.KindResponsive)
	}
	stale = append(stale, staleResponsive...)

	if len(stale) == 0 {
		fmt.Fprintf(a.out, "Media %d: nothing to clean\n", m.ID)
		return nil
	}
	var errs []error
	for i, name := range stale {
		if dryRun {
			fmt.Fprintf(a.out, "would delete %s %s\n", kinds[i], name)
			continue
		}
		if err := a.fs.RemoveFile(ctx, m, kinds[i], name); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.out, "deleted %s %s\n", kinds[i], name)
	}
	return errors.Join(errs...)
}

// unreferenced lists the file names below dir that keep does not contain.
func (a *app) unreferenced(ctx context.Context, disk filesystem.Disk, dir string, keep map[string]bool) ([]string, error) {
	files, err := disk.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		if name := path.Base(f); !keep[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

func (a *app) mark(ok bool) string {
	switch {
	case !a.color && ok:
		return "[ok]"
	case !a.color:
		return "[--]"
	case ok:
		return "\x1b[32m✓\x1b[0m"
	default:
		return "\x1b[31m✗\x1b[0m"
	}
}

func vacuum(ctx context.Context, repo *database.Repository) error {
	ctx, cancel := context.WithTimeout(ctx, vacuumTimeout)
	defer cancel()
	start := time.Now()
	if err := repo.Vacuum(ctx); err != nil {
		return err
	}
	fmt.Printf("Database compacted in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// sanitizeCommand keeps [a-zA-Z0-9_-] and replaces everything else with
// '_' before echoing user input.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Media conversion maintenance")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: regenerate <command> [flags] [ids]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  regenerate [--missing] [--only a,b] [--responsive] <id...>")
	fmt.Fprintln(w, "                  Run conversions now, queued ones included")
	fmt.Fprintln(w, "  list <id>       Show conversions and whether they were generated")
	fmt.Fprintln(w, "  clean [--dry-run] <id>")
	fmt.Fprintln(w, "                  Delete files no conversion or record refers to")
	fmt.Fprintln(w, "  vacuum          Compact the database")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment: the server's variables (DATABASE_DIR, CONVERSIONS_FILE, disks).")
}
