// Command reflexcore is a thin CLI wrapper over the library packages in
// this module. It is not the protocol surface the spec excludes (no MCP,
// no daemon) — it exists purely to exercise index/query end to end with a
// real Walker and Vcs and a no-op Parser wired together.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/reflexcore/internal/config"
	"github.com/standardbeagle/reflexcore/internal/indexing"
	"github.com/standardbeagle/reflexcore/internal/search"
	"github.com/standardbeagle/reflexcore/internal/types"
	"github.com/standardbeagle/reflexcore/internal/vcsgit"
	"github.com/standardbeagle/reflexcore/internal/version"
	"github.com/standardbeagle/reflexcore/internal/watch"
)

// walkWalker is the Walker (spec §6) this binary wires in; directory
// exclusion comes from config's [index] exclude globs, compiled with
// gobwas/glob for real "**" path-aware matching.
type walkWalker struct {
	exclude []glob.Glob
}

func newWalkWalker(patterns []string) walkWalker {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pat := range patterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: invalid exclude pattern %q: %v\n", pat, err)
			continue
		}
		compiled = append(compiled, g)
	}
	return walkWalker{exclude: compiled}
}

func (w walkWalker) Iter(ctx context.Context, root string) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		defer close(ch)
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			for _, g := range w.exclude {
				if g.Match(rel) {
					return nil
				}
			}
			select {
			case ch <- rel:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()
	return ch, nil
}

// noopParser extracts no symbols. Real language parsers are out of scope
// for this demonstration binary (spec's Parser collaborator is supplied
// by the caller, not the core).
type noopParser struct{}

func (noopParser) Parse(path string, source []byte, language string) ([]types.Symbol, error) {
	return nil, nil
}

func loadConfig(c *cli.Context, root string) (*config.Config, error) {
	cfgPath := c.String("config")
	if cfgPath == "" {
		cfgPath = filepath.Join(root, "config.toml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = root
	return cfg, nil
}

func indexCommand(c *cli.Context) error {
	root, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, root)
	if err != nil {
		return err
	}
	cacheRoot := c.String("cache")

	idx := indexing.New(cacheRoot, root, newWalkWalker(cfg.Index.Exclude), noopParser{}, vcsgit.New())
	idx.Config = cfg

	result, err := idx.Run(context.Background())
	if err != nil {
		return err
	}
	printResult(result)

	if !c.Bool("watch") && !cfg.Index.WatchMode {
		return nil
	}
	return runWatch(idx, cfg)
}

func printResult(result indexing.Result) {
	fmt.Printf("branch=%s total=%d changed=%d cached=%d failed=%d elapsed=%s\n",
		result.Branch, result.TotalFiles, result.ChangedFiles, result.CachedFiles, result.FailedFiles, result.Elapsed)
}

// runWatch keeps idx's cache fresh until interrupted, re-running a full
// pass (cheap thanks to hash-based change detection) whenever the
// debounced watcher fires.
func runWatch(idx *indexing.Indexer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, err := watch.New(time.Duration(cfg.Index.WatchDebounceMs)*time.Millisecond, func() {
		result, err := idx.Run(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "watch: reindex failed: %v\n", err)
			return
		}
		printResult(result)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx, idx.WorkspaceRoot); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

func queryCommand(c *cli.Context) error {
	cacheRoot := c.String("cache")
	branch := c.String("branch")
	if branch == "" {
		branch = types.DefaultBranch
		if state, ok, err := vcsgit.New().State("."); err == nil && ok {
			branch = state.Branch
		}
	}
	pattern := c.Args().First()
	if pattern == "" {
		return cli.Exit("query requires a pattern argument", 1)
	}

	e, err := search.Open(cacheRoot)
	if err != nil {
		return err
	}
	defer e.Close()

	filter := search.Filter{
		UseContains: c.Bool("contains"),
		PathsOnly:   c.Bool("paths-only"),
	}
	if limit := c.Int("limit"); limit > 0 {
		filter.Limit = &limit
	}

	var resp search.Response
	switch mode := c.String("mode"); mode {
	case "symbol":
		resp, err = e.SymbolSearch(context.Background(), branch, pattern, filter)
	case "regex":
		resp, err = e.RegexSearch(context.Background(), branch, pattern, filter)
	case "text", "":
		resp, err = e.TextSearch(context.Background(), branch, pattern, filter)
	default:
		return cli.Exit(fmt.Sprintf("unknown mode %q (want text, symbol or regex)", mode), 1)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func main() {
	app := &cli.App{
		Name:    "reflexcore",
		Usage:   "local-first, structure-aware code search substrate",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cache",
				Usage: "cache root directory holding trigrams.bin/content.bin/meta.db",
				Value: ".reflexcore",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config.toml (defaults to <root>/config.toml)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "build or refresh the cache for a workspace",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "keep running, reindexing on file changes (overrides config watch_mode)"},
				},
				Action: indexCommand,
			},
			{
				Name:      "query",
				Usage:     "run a symbol, text or regex query against an existing cache",
				ArgsUsage: "<pattern>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "text, symbol or regex", Value: "text"},
					&cli.StringFlag{Name: "branch", Usage: "branch to query (defaults to the VCS-detected branch)"},
					&cli.BoolFlag{Name: "contains", Usage: "symbol mode: substring match instead of word-boundary (text and regex modes always match substrings)"},
					&cli.BoolFlag{Name: "paths-only", Usage: "return deduplicated paths instead of matches"},
					&cli.IntFlag{Name: "limit", Usage: "max results (0 = default_limit from config)"},
				},
				Action: queryCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace("error: "+err.Error()))
		os.Exit(1)
	}
}
