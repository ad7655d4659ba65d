package main

import (
	"bugmaschine/get621/e621"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "2.0.0"

type opMode int

const (
	opSearch opMode = iota
	opPool
	opHelp
	opVersion
)

type outMode int

const (
	outIDs outMode = iota
	outVerbose
	outRaw
	outJSON
)

type options struct {
	op      opMode
	mode    e621.Mode
	out     outMode
	save    bool
	archive bool
	limit   int
	poolID  int64
	tags    []string
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("get621", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	// everything after the first tag is a tag, even if it starts with a dash
	fs.SetInterspersed(false)
	fs.SortFlags = false

	fs.BoolP("children", "c", false, "Search for children in all the results")
	fs.BoolP("help", "h", false, "Show this screen")
	fs.BoolP("json", "j", false, "Output JSON info about the posts on stdout")
	fs.IntP("limit", "l", 1, "Set the post count limit when searching")
	fs.BoolP("output", "o", false, "Download and output the first post to stdout")
	fs.BoolP("parents", "p", false, "Search for parents in all the results")
	fs.BoolP("pool", "P", false, "Search for posts in the given pool ID (ordered)")
	fs.BoolP("save", "s", false, "Download the posts to the save destination")
	fs.BoolP("verbose", "v", false, "Verbose output about the results")
	fs.BoolP("version", "V", false, "Print version information and exit")

	fs.String("url", "", "Use another API base URL")
	fs.Bool("nsfw", false, "Use e621.net instead of e926.net")
	fs.String("dest", "", "Save directory or s3://bucket/prefix (default: GET621_S3_BUCKET, else .)")
	fs.Bool("archive", false, "Record the results in the Postgres catalog")
	fs.Bool("debug", false, "Print debug logs")
	return fs
}

// parseArgs reads the command line (without the program name). Flags that
// mirror a config key are bound to v so they override the environment.
func parseArgs(args []string, v *viper.Viper) (options, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return options{}, &e621.InvalidArgumentError{Arg: "arguments", Msg: err.Error()}
	}

	for key, flag := range map[string]string{
		"base_url": "url",
		"nsfw":     "nsfw",
		"dest":     "dest",
		"debug":    "debug",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return options{}, err
		}
	}

	set := func(name string) bool {
		on, _ := fs.GetBool(name)
		return on
	}

	opts := options{op: opSearch, limit: 1}
	switch {
	case set("help"):
		opts.op = opHelp
		return opts, nil
	case set("version"):
		opts.op = opVersion
		return opts, nil
	}

	switch {
	case set("children") && set("parents"):
		return options{}, usageError("--children and --parents can't be combined")
	case set("children"):
		opts.mode = e621.ModeChildren
	case set("parents"):
		opts.mode = e621.ModeParents
	}

	outputs := 0
	for name, mode := range map[string]outMode{"verbose": outVerbose, "output": outRaw, "json": outJSON} {
		if set(name) {
			opts.out = mode
			outputs++
		}
	}
	if outputs > 1 {
		return options{}, usageError("only one of --verbose, --output and --json can be used")
	}

	opts.save = set("save")
	opts.archive = set("archive")

	if set("pool") {
		return poolOptions(opts, fs)
	}

	opts.limit, _ = fs.GetInt("limit")
	if opts.out == outRaw {
		// raw output only makes sense for a single file
		opts.limit = 1
	}
	if opts.limit < 1 || opts.limit > e621.MaxLimit {
		return options{}, &e621.InvalidArgumentError{Arg: "limit", Msg: fmt.Sprintf("%d is not within [1, %d]", opts.limit, e621.MaxLimit)}
	}
	opts.tags = fs.Args()
	return opts, nil
}

func poolOptions(opts options, fs *pflag.FlagSet) (options, error) {
	opts.op = opPool
	if opts.out == outRaw {
		return options{}, usageError("--output can't be used with --pool")
	}
	if fs.Changed("limit") {
		return options{}, usageError("--limit can't be used with --pool")
	}

	args := fs.Args()
	if len(args) != 1 {
		return options{}, usageError("--pool takes exactly one pool ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return options{}, &e621.InvalidArgumentError{Arg: "pool ID", Msg: fmt.Sprintf("%q is not a positive number", args[0])}
	}
	opts.poolID = id
	return opts, nil
}

func usageError(msg string) error {
	return &e621.InvalidArgumentError{Arg: "usage", Msg: msg}
}

func usage(sfw bool) string {
	var b strings.Builder
	b.WriteString("E621/926 command line tool")
	if sfw {
		b.WriteString(" (SFW mode)")
	}
	b.WriteString("\n\n  Usage:\n")
	b.WriteString("    get621 -h | --help\n")
	b.WriteString("    get621 -V | --version\n")
	b.WriteString("    get621 [-s] [-c | -p] [-v | -j] -P pool_id\n")
	b.WriteString("    get621 [-s] [-c | -p] [-v | -o | -j] [-l limit] [--] [tag...]\n")
	b.WriteString("\n  Options:\n")

	newFlagSet().VisitAll(func(f *pflag.Flag) {
		name := "    "
		if f.Shorthand != "" {
			name += "-" + f.Shorthand + ", "
		} else {
			name += "    "
		}
		name += "--" + f.Name
		fmt.Fprintf(&b, "%-33s%s\n", name, f.Usage)
	})
	b.WriteString("\n  Environment:\n")
	b.WriteString("    GET621_* variables (or a .env / get621.toml file) set the defaults,\n")
	b.WriteString("    e.g. GET621_NSFW=true, GET621_COOLDOWN=2s, GET621_S3_BUCKET=...\n")
	return b.String()
}

func versionString() string {
	return "get621 - " + version + " (by nasso <https://gitlab.com/nasso>)"
}
