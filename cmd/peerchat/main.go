package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/peerchat/internal/app"
	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/config"
	"github.com/matheus3301/peerchat/internal/profile"
	"github.com/matheus3301/peerchat/internal/store"
	intsync "github.com/matheus3301/peerchat/internal/sync"
	"github.com/matheus3301/peerchat/internal/tui"
	"github.com/matheus3301/peerchat/internal/tui/model"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	serverFlag := flag.String("server", "", "chat server URL (overrides config)")
	userFlag := flag.String("user", "", "your user id (overrides config)")
	initFlag := flag.Bool("init", false, "write the effective config for the profile and exit")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fail(err)
	}

	cfg, err := profile.LoadConfig(profileName)
	if err != nil {
		fail(fmt.Errorf("load config: %w", err))
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *userFlag != "" {
		cfg.UserID = *userFlag
	}

	if *initFlag {
		path := profile.ProfileConfigPath(profileName)
		if err := config.Save(path, cfg); err != nil {
			fail(err)
		}
		fmt.Println(path)
		return
	}
	if err := cfg.Validate(); err != nil {
		fail(fmt.Errorf("config: %w (edit %s)", err, profile.ProfileConfigPath(profileName)))
	}

	var (
		syncer *intsync.Synchronizer
		st     *store.Store
		b      *bus.Bus
		logger *zap.Logger
	)
	fxApp := fx.New(
		app.Module(app.Params{ProfileName: profileName, Config: cfg, Exclusive: true}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.StartTimeout(app.StartTimeout),
		fx.StopTimeout(app.StartTimeout),
		fx.Populate(&syncer, &st, &b, &logger),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fail(err)
	}

	ui := tui.NewApp(model.NewViewModel(syncer, st, cfg.UserID), b, profileName, logger.Named("tui"))
	runErr := ui.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StartTimeout)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	if runErr != nil {
		fail(runErr)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
