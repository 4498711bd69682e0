package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/soft-duck/shorty/pkg/adapters/repository"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/core/services"
	"github.com/soft-duck/shorty/pkg/logger"
	"github.com/soft-duck/shorty/pkg/ports"
)

const usage = "expected 'export', 'import' or 'clean' subcommands"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := context.Background()
	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	store := services.NewLinkStore(repo, services.NewRandomIDGenerator(cfg.IDLength), cfg.StoreOptions(), domain.RealClock{}, log)

	if err := run(ctx, store, os.Args[1:], os.Stdout); err != nil {
		log.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store ports.LinkService, args []string, out io.Writer) error {
	switch args[0] {
	case "export":
		exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
		exportFile := exportCmd.String("file", "", "write JSON to file instead of stdout")
		if err := exportCmd.Parse(args[1:]); err != nil {
			return err
		}
		return doExport(ctx, store, *exportFile, out)
	case "import":
		importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
		importFile := importCmd.String("file", "", "JSON file to import")
		if err := importCmd.Parse(args[1:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.PrintDefaults()
			return fmt.Errorf("import: -file is required")
		}
		return doImport(ctx, store, *importFile, out)
	case "clean":
		removed, err := store.Clean(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d links\n", removed)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
}

func doExport(ctx context.Context, store ports.LinkService, filename string, out io.Writer) error {
	links, err := store.List(ctx)
	if err != nil {
		return err
	}
	if links == nil {
		links = []domain.Link{}
	}

	if filename != "" {
		f, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(links)
}

func doImport(ctx context.Context, store ports.LinkService, filename string, out io.Writer) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var links []domain.Link
	if err := json.NewDecoder(file).Decode(&links); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}

	res, err := store.Import(ctx, links)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d links, skipped %d\n", res.Imported, res.Skipped)
	return nil
}
