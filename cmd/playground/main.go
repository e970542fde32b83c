package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/adapters/media"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/token"
	"github.com/dkeye/VoiceAgent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The terminal belongs to the UI; logs go to a file.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var identity domain.Identity
	if cfg.Client.Identity != "" {
		if identity, err = domain.NewIdentity(cfg.Client.Identity); err != nil {
			return fmt.Errorf("client.identity: %w", err)
		}
	}
	room, err := domain.NewRoomName(cfg.Client.Room)
	if err != nil {
		return fmt.Errorf("client.room: %w", err)
	}

	rtcCfg := rtc.DefaultConfig()
	rtcCfg.ICEServers = cfg.Client.ICEServers
	rtcCfg.Capturer = &media.FileCapturer{
		CameraFile: cfg.Client.CameraFile,
		MicFile:    cfg.Client.MicFile,
		Loop:       cfg.Client.LoopMedia,
	}
	transport := rtc.New(rtcCfg)

	facade := orch.New(orch.Config{
		Identity:             identity,
		Room:                 room,
		Desired:              domain.DesiredInputState{CameraEnabled: cfg.Client.Camera, MicEnabled: cfg.Client.Mic},
		ReconnectDelay:       cfg.Client.ReconnectDelay,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		EnableGrace:          cfg.Client.EnableGrace,
		ConnectTimeout:       cfg.Client.ConnectTimeout,
		Publish:              app.DefaultPublishOptions(),
		Policy:               app.SimplePolicy{},
	}, token.NewClient(cfg.Client.TokenEndpoint, cfg.RTC.URL), transport)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		facade.Run(runCtx)
	}()

	p := tea.NewProgram(ui.New(facade), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()

	stop()
	<-done
	log.Info().Msg("playground exited")
	if uiErr != nil && ctx.Err() == nil {
		return uiErr
	}
	return nil
}
