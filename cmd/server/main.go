package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/archive"
	"github.com/meetingwhisperer/server/internal/config"
	"github.com/meetingwhisperer/server/internal/integrations"
	"github.com/meetingwhisperer/server/internal/oracle"
	"github.com/meetingwhisperer/server/internal/pipeline"
	"github.com/meetingwhisperer/server/internal/server"
	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/transcriber"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		log.SetLevel(level)
	}

	orc, err := oracle.New(cfg.Oracle, log)
	if err != nil {
		log.Fatalf("Failed to create oracle: %v", err)
	}
	trans, err := transcriber.New(cfg.Transcription, log)
	if err != nil {
		log.Fatalf("Failed to create transcriber: %v", err)
	}

	var archiver archive.Archiver = archive.Noop{}
	if cfg.Redis.Enabled {
		redisArchiver, err := archive.NewRedis(cfg.Redis.Config)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, archiving disabled")
		} else {
			archiver = redisArchiver
			log.WithField("addr", cfg.Redis.Addr).Info("redis archiving enabled")
		}
	}

	p := pipeline.New(pipeline.Options{
		Transcriber:  trans,
		Oracle:       orc,
		Trigger:      session.NewTrigger(cfg.Pipeline.ExtractInterval),
		Archiver:     archiver,
		Log:          log,
		Threshold:    cfg.Pipeline.ConfidenceThreshold,
		ContextLines: cfg.Pipeline.ContextLines,
	})

	jira := integrations.NewJira(cfg.Jira, log)
	webhooks := integrations.NewWebhooks(cfg.Webhooks, log)
	srv := server.New(cfg, p, jira, webhooks, log)

	go func() {
		if err := srv.Start(server.Addr(cfg)); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"transcription": cfg.Transcription.Provider,
		"oracle":        cfg.Oracle.Provider,
	}).Info("meeting whisperer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
	p.Shutdown()
}
