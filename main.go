package main

import (
	"bugmaschine/get621/catalog"
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type app struct {
	client  *e621.Client
	out     io.Writer
	opts    options
	sink    sink
	catalog *catalog.Catalog
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	loadDotenv()
	v := newViper()

	opts, err := parseArgs(args, v)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\nRun get621 --help for usage.\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(v)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	switch opts.op {
	case opHelp:
		fmt.Fprint(stdout, usage(!cfg.NSFW && cfg.BaseURL == e621.SafeBaseURL))
		return exitOK
	case opVersion:
		fmt.Fprintln(stdout, versionString())
		return exitOK
	}

	if err := logging.Setup(cfg.LogDir, cfg.Debug); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer logging.Close()

	client, err := e621.NewClient(cfg.clientConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer client.Close()
	logging.Debug("Using %v", client.BaseURL())

	a := &app{client: client, out: stdout, opts: opts}

	if opts.save {
		if a.sink, err = newSink(ctx, cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}
	if opts.archive {
		if a.catalog, err = catalog.Open(ctx, cfg.DB); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		defer a.catalog.Close()
	}

	if err := a.execute(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var invalid *e621.InvalidArgumentError
		if errors.As(err, &invalid) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func (a *app) execute(ctx context.Context) error {
	var (
		posts []e621.Post
		pool  *e621.Pool
	)

	switch a.opts.op {
	case opPool:
		p, err := a.client.Pool(ctx, a.opts.poolID)
		if err != nil {
			return err
		}
		pool = &p
		posts = p.Posts
	default:
		var err error
		if posts, err = a.client.Search(ctx, a.opts.tags, a.opts.limit); err != nil {
			return err
		}
	}

	if a.opts.out == outVerbose {
		printRelations(a.out, posts, a.opts.mode)
	}
	results, err := a.client.Resolve(ctx, posts, a.opts.mode)
	if err != nil {
		return err
	}

	var poolID int64
	if pool != nil {
		poolID = pool.ID
	}

	saved := false
	switch a.opts.out {
	case outIDs:
		printIDs(a.out, results)
	case outVerbose:
		printVerbose(a.out, results, pool)
	case outJSON:
		if err := printJSON(a.out, results, pool); err != nil {
			return err
		}
	case outRaw:
		// one download feeds both stdout and the save destination
		if err := a.transfer(ctx, results, poolID, a.out); err != nil {
			return err
		}
		saved = true
	}

	if a.sink != nil && !saved {
		if err := a.transfer(ctx, results, poolID, nil); err != nil {
			return err
		}
	}

	if a.catalog != nil {
		return a.archive(ctx, pool, posts, results)
	}
	return nil
}

// archive records the pool, the results and the posts they were resolved from.
func (a *app) archive(ctx context.Context, pool *e621.Pool, posts, results []e621.Post) error {
	if pool != nil {
		if err := a.catalog.SavePool(ctx, pool); err != nil {
			return fmt.Errorf("archiving pool #%d: %w", pool.ID, err)
		}
	} else if err := a.catalog.SavePosts(ctx, posts); err != nil {
		return fmt.Errorf("archiving results: %w", err)
	}

	if a.opts.mode != e621.ModeNone {
		if err := a.catalog.SavePosts(ctx, results); err != nil {
			return fmt.Errorf("archiving relatives: %w", err)
		}
	}
	a.logf("Archived %d posts", len(posts)+len(results))
	return nil
}
