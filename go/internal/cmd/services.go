package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/config"
	"github.com/mcdev12/typerace/go/internal/race/gateway"
	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/results"
	"github.com/mcdev12/typerace/go/internal/race/session"
	"github.com/mcdev12/typerace/go/internal/race/words"
)

type Services struct {
	Gateway   *gateway.Service
	Rooms     *registry.Registry
	Recorder  *results.Recorder
	publisher results.Publisher
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Word source → result recorder → registry → gateway

	wordSource := words.Default()
	if cfg.Race.WordListPath != "" {
		src, err := words.Load(cfg.Race.WordListPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load word list: %w", err)
		}
		wordSource = src
	}
	log.Info().Int("words", wordSource.Len()).Msg("word list loaded")

	publisher, err := setupPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	recorder := results.NewRecorder(publisher, results.DefaultConfig(), nil)
	// Stopped explicitly by Close so queued results are flushed after ctx ends
	if err := recorder.Start(context.WithoutCancel(ctx)); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to start result recorder: %w", err)
	}

	gwConfig := cfg.Gateway()
	cm := gateway.NewConnectionManager(gwConfig.ConnectionConfig)

	rooms := registry.New(cfg.Registry(), session.Deps{
		Words:   wordSource,
		Out:     cm,
		Results: recorder,
	})

	return &Services{
		Gateway:   gateway.NewService(gwConfig, cm, rooms),
		Rooms:     rooms,
		Recorder:  recorder,
		publisher: publisher,
	}, nil
}

func setupPublisher(ctx context.Context, cfg config.Config) (results.Publisher, error) {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set, race results are only logged")
		return results.LogPublisher{}, nil
	}
	pub, err := results.NewJetStreamPublisher(ctx, cfg.JetStream())
	if err != nil {
		return nil, fmt.Errorf("failed to connect result publisher: %w", err)
	}
	return pub, nil
}

// Close flushes pending results and closes the publisher.
func (s *Services) Close() {
	if err := s.Recorder.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop result recorder")
	}
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close result publisher")
	}
}
