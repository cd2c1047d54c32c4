// Command memlock-admin inspects and flushes the cache cluster.
//
//	memlock-admin [-config memlock.yaml] stats
//	memlock-admin [-config memlock.yaml] report <settings|items|sizes|sizes_enable|sizes_disable|slabs|conns>
//	memlock-admin [-config memlock.yaml] flush
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/memlock"
	"github.com/unkn0wn-root/memlock/config"
	"github.com/unkn0wn-root/memlock/internal/admin"
	logruslog "github.com/unkn0wn-root/memlock/log/logrus"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("memlock-admin", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to the YAML configuration file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: memlock-admin [-config file] stats | report <%s> | flush\n",
			strings.Join(memlock.Reports, "|"))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := newLogger(cfg.Log)

	svc, err := memlock.New(cfg.ToOptions(logruslog.New(logger), nil))
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var n int
	switch cmd := fs.Arg(0); cmd {
	case "stats":
		n, err = admin.Stats(ctx, svc, os.Stdout)
	case "report":
		if fs.NArg() != 2 {
			fs.Usage()
			return 2
		}
		n, err = admin.Report(ctx, svc, os.Stdout, fs.Arg(1))
	case "flush":
		if err := admin.Flush(ctx, svc, os.Stdout); err != nil {
			logger.WithError(err).Error("flush failed")
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		logger.WithError(err).Error("stats failed")
		return 1
	}
	if n == 0 {
		return 1
	}
	return 0
}

func newLogger(c config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}
