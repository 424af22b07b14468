package main

import (
	"context"
	"flag"
	"github.com/anthonyraymond/joal-seeder/internal/announce"
	"github.com/anthonyraymond/joal-seeder/internal/bandwidth"
	"github.com/anthonyraymond/joal-seeder/internal/config"
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/seedmanager"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// extra time given to the seed manager on top of the stopped announce timeout
const shutdownGracePeriod = 5 * time.Second

func main() {
	var configDir string

	flagSet := flag.NewFlagSet("joal", flag.ContinueOnError)

	currentWorkingDir, _ := os.Getwd()
	flagSet.StringVar(&configDir, "dir", currentWorkingDir, "Joal working directory (the one containing the config file and torrents/)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if err := run(configDir); err != nil {
		logs.GetLogger().Error("joal: exiting on error", zap.Error(err))
		_ = logs.GetLogger().Sync()
		os.Exit(1)
	}
}

func run(configDir string) error {
	defer func() { _ = logs.GetLogger().Sync() }()

	loader, err := config.NewLoader(configDir)
	if err != nil {
		return err
	}
	conf, err := loader.LoadConfigAndInitIfNeeded()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := logs.ReplaceLogger(conf.App.Log); err != nil {
		return err
	}

	httpAnnouncer, err := announce.NewHttpAnnouncer(conf.App.Tracker)
	if err != nil {
		return err
	}
	speedProvider, err := bandwidth.NewRandomSpeedProvider(conf.App.Bandwidth.Speed)
	if err != nil {
		return err
	}
	dispatcher, err := bandwidth.NewDispatcher(conf.App.Bandwidth.Dispatcher)
	if err != nil {
		return err
	}
	manager, err := seedmanager.New(
		conf.App.Seed,
		conf.App.Announce,
		seedmanager.Paths{TorrentsDir: conf.TorrentsDir, ArchiveDir: conf.ArchivedTorrentsDir},
		&announce.SchemeAnnouncer{Http: httpAnnouncer},
		speedProvider,
		dispatcher,
	)
	if err != nil {
		return err
	}

	ctx, stopNotify := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopNotify()

	if err := manager.Start(); err != nil {
		return errors.Wrap(err, "failed to start seed manager")
	}
	<-ctx.Done()
	logs.GetLogger().Info("joal: shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), conf.App.Announce.StopTimeout+shutdownGracePeriod)
	defer cancel()
	manager.Stop(stopCtx)
	return nil
}
