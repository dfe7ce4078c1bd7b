// Command vesper is the Vesper voice assistant.
//
// It runs as an interactive terminal application: voice interactions are
// armed with the "listen" command, text interactions go through "ask" or the
// clipboard. Metrics and health endpoints are served when
// server.metrics_addr is configured.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vesper-voice/vesper/internal/app"
	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/observe"
	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/audio/oto"
	"github.com/vesper-voice/vesper/pkg/audio/portaudio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vesper: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vesper: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	leveler := new(slog.LevelVar)
	leveler.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: leveler}))
	slog.SetDefault(logger)

	slog.Info("vesper starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics provider shutdown error", "err", err)
		}
	}()

	// ── Audio devices ─────────────────────────────────────────────────────────
	devices, closeDevices, err := openDevices(cfg)
	if err != nil {
		slog.Error("failed to open audio devices", "err", err)
		return 1
	}
	defer closeDevices()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, devices,
		app.WithLogger(logger),
		app.WithLogLevel(leveler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, devices)

	// ── Command loop ──────────────────────────────────────────────────────────
	go commandLoop(ctx, stop, application)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Audio device selection ────────────────────────────────────────────────────

// openDevices opens the capture and playback backends named in the audio
// config. Capture always goes through PortAudio. Playback uses PortAudio
// too, unless output_device is "oto" or the PortAudio output cannot be
// opened, in which case the oto context takes over at the capture device's
// native rate.
func openDevices(cfg *config.Config) (app.Devices, func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return app.Devices{}, nil, err
	}
	cleanup := func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("portaudio terminate error", "err", err)
		}
	}

	var (
		input audio.Device
		err   error
	)
	if name := cfg.Audio.InputDevice; name != "" {
		input, err = portaudio.ByName(name, 1)
	} else {
		input, err = portaudio.DefaultInput()
	}
	if err != nil {
		cleanup()
		return app.Devices{}, nil, fmt.Errorf("capture device: %w", err)
	}

	output, err := openOutput(cfg, input.NativeFormat())
	if err != nil {
		cleanup()
		return app.Devices{}, nil, fmt.Errorf("playback device: %w", err)
	}

	return app.Devices{Input: input, Output: output}, cleanup, nil
}

func openOutput(cfg *config.Config, fallbackFormat audio.Format) (audio.Device, error) {
	switch name := cfg.Audio.OutputDevice; name {
	case "oto":
		return oto.New(fallbackFormat)
	case "":
		out, err := portaudio.DefaultOutput()
		if err == nil {
			return out, nil
		}
		slog.Warn("no portaudio output, falling back to oto", "err", err)
		return oto.New(fallbackFormat)
	default:
		return portaudio.ByName(name, 2)
	}
}

// ── Command loop ──────────────────────────────────────────────────────────────

// commandLoop reads operator commands from stdin until EOF or ctx ends.
// stop cancels the signal context so Run returns.
func commandLoop(ctx context.Context, stop context.CancelFunc, a *app.App) {
	fmt.Println(`commands: listen | stop | ask <text> | clip | assistant <name> | state | ack | quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		var err error
		switch cmd {
		case "listen":
			err = a.StartVoice()
		case "stop":
			err = a.StopVoice()
		case "ask":
			var reply string
			if reply, err = a.Ask(ctx, rest); err == nil {
				fmt.Println(reply)
			}
		case "clip":
			var reply string
			if reply, err = a.AskClipboard(ctx); err == nil {
				fmt.Println(reply)
			}
		case "assistant":
			err = a.SetAssistant(rest)
		case "state":
			fmt.Println(a.Pipeline().State())
			if info := a.Pipeline().LastError(); info != nil {
				fmt.Printf("last error: %v\n", info)
			}
		case "ack":
			err = a.Pipeline().Acknowledge()
		case "quit", "exit":
			stop()
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
	// stdin closed (e.g. running under a supervisor): keep serving until a
	// signal arrives.
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, devices app.Devices) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Vesper — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Clipboard", cfg.Providers.Clipboard.Name, "")
	fmt.Printf("║  Input device  : %-20s ║\n", trunc(devices.Input.Name(), 20))
	fmt.Printf("║  Output device : %-20s ║\n", trunc(devices.Output.Name(), 20))
	fmt.Printf("║  Assistants    : %-20d ║\n", len(cfg.Assistants))
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics       : %-20s ║\n", trunc(cfg.Server.MetricsAddr, 20))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(label, name, model string) {
	if name == "" {
		name = "(none)"
	}
	if model != "" {
		name = name + "/" + model
	}
	fmt.Printf("║  %-14s: %-20s ║\n", label, trunc(name, 20))
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
