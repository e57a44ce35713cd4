// Command sdrpipe runs a receiver described by a configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/sdr/log"
	_ "pipelined.dev/sdr/recorder"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

type options struct {
	config    string
	verbose   bool
	logFormat string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sdrpipe",
		Short:         "Software defined radio pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.config, "config", "c", "sdr.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	root.AddCommand(newRunCommand(opts), newCheckCommand(opts))
	return root
}

// logger returns the logger configured by flags.
func (opts *options) logger() (*logrus.Logger, error) {
	l := log.GetLogger()
	if opts.verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	switch opts.logFormat {
	case "text":
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.logFormat)
	}
	return l, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		stop()
		os.Exit(errorExitCode)
	}
	stop()
	os.Exit(successExitCode)
}
