package main

import (
	"fmt"
	"io"
	"runtime"

	"bitcli.local/internal/platform/config"
	"github.com/spf13/cobra"
)

// flags 是命令行参数，只有用户显式给出的才会覆盖配置
type flags struct {
	configFile    string
	cacheDir      string
	noCache       bool
	offline       bool
	maxConcurrent int
	ordering      string
	domain        string
	groupGUID     string
}

func (f *flags) options(cmd *cobra.Command) config.Options {
	var ops config.Options
	changed := cmd.Flags().Changed

	if changed("domain") {
		ops.Domain = &f.domain
	}
	if changed("group-guid") {
		ops.GroupGUID = &f.groupGUID
	}
	if changed("cache-dir") {
		ops.CacheDir = &f.cacheDir
	}
	if f.noCache {
		empty := ""
		ops.CacheDir = &empty
	}
	if changed("offline") {
		ops.Offline = &f.offline
	}
	if changed("max-concurrent") {
		ops.MaxConcurrent = &f.maxConcurrent
	}
	if changed("ordering") {
		ops.Ordering = &f.ordering
	}
	return ops
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}

	run := func(cmd *cobra.Command, args []string) error {
		return runShorten(cmd, f, args, stdin, stdout, stderr)
	}

	root := &cobra.Command{
		Use:   "bitcli [URL...]",
		Short: "Shorten URLs with Bitly",
		Long: `bitcli shortens long URLs through the Bitly v4 API.

URLs are taken from the arguments, or read line by line from stdin when no
arguments are given. Results are cached locally, so shortening the same URL
twice costs a single API call.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configFile, "config-file", "c", "", "config file (default <user config dir>/bitcli/config.yaml)")
	pf.StringVar(&f.cacheDir, "cache-dir", "", `cache directory; "" disables the cache`)
	pf.BoolVar(&f.noCache, "no-cache", false, "disable the local cache")
	pf.BoolVar(&f.offline, "offline", false, "never call the Bitly API, answer from the cache only")
	pf.IntVar(&f.maxConcurrent, "max-concurrent", config.DefaultMaxConcurrent, "maximum number of concurrent shorten operations")
	pf.StringVar(&f.ordering, "ordering", "ordered", "output order: ordered (input order) or unordered (completion order)")
	pf.StringVarP(&f.domain, "domain", "d", "", "custom Bitly domain")
	pf.StringVarP(&f.groupGUID, "group-guid", "g", "", "Bitly group GUID (default: the user's default group)")
	root.MarkFlagsMutuallyExclusive("no-cache", "offline")

	root.AddCommand(
		&cobra.Command{
			Use:   "shorten [URL...]",
			Short: "Shorten URLs (default command)",
			Args:  cobra.ArbitraryArgs,
			RunE:  run,
		},
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(stdout, "bitcli %s (commit %s, built %s, %s)\n", version, commit, buildTime, runtime.Version())
			return err
		},
	}
}
