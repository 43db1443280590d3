package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/EricW9888/ScreenGuardian/common/logger"
	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/service"

	"go.uber.org/zap"
)

const usage = `usage: screenguardian [command] [flags]

commands:
  run        run the monitoring pipeline (default)
  calibrate  store the distance calibration and optionally the upright pose
  report     print period metrics or export them as a workbook
  erase      delete all stored metrics (panic erase)
  repair     merge duplicate aggregate rows and exit
`

func main() {
	command, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialise logging
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "screenguardian", &cfg.Log.File)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch command {
	case "run":
		err = run(ctx, cancel, cfg, args, log)
	case "calibrate", "report", "erase", "repair":
		err = oneShot(ctx, command, cfg, args, log)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("Command failed", zap.String("command", command), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	replayDir := fs.String("replay", os.Getenv("SG_REPLAY_DIR"), "read frames from image files in this directory instead of the camera")
	loop := fs.Bool("loop", false, "restart the replay when it reaches the end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// 3. Build the service
	store := config.NewStore(cfg)
	svc, err := service.NewGuardianService(ctx, store, log, service.SourceOptions{
		ReplayDir:  *replayDir,
		ReplayLoop: *loop,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Stop()

	if err := svc.Init(ctx); err != nil {
		return err
	}
	if err := svc.DetectorHealthy(ctx); err != nil {
		log.Warn("Detector sidecar not reachable yet", zap.Error(err))
	}

	// 4. Hot reload
	reloader := config.NewReloader(store, log)
	go reloader.Run(ctx)

	// 5. Start the pipeline
	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- svc.Start(ctx)
	}()

	// 6. Wait for a stop signal or for the pipeline to end
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				reloader.ReloadOnce()
			case syscall.SIGUSR1:
				svc.SetMinimized(true)
			case syscall.SIGUSR2:
				svc.SetMinimized(false)
			default:
				log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
				cancel()
				if err := <-serviceDone; err != nil {
					return err
				}
				log.Info("ScreenGuardian stopped")
				return nil
			}
		case err := <-serviceDone:
			if err != nil {
				return fmt.Errorf("service error: %w", err)
			}
			log.Info("ScreenGuardian stopped")
			return nil
		}
	}
}
