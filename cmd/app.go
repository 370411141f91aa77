package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/classifier"
	"github.com/NgigiN/ledgerbot/internal/config"
	"github.com/NgigiN/ledgerbot/internal/dispatch"
	"github.com/NgigiN/ledgerbot/internal/events"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/llm"
	"github.com/NgigiN/ledgerbot/internal/memory"
	"github.com/NgigiN/ledgerbot/internal/storage"
	"go.uber.org/zap"
)

// app holds one wired session and the resources it must release.
type app struct {
	dispatcher *dispatch.Dispatcher
	closers    []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, sender chat.Sender, chatID string) (*app, error) {
	a := &app{}
	opts := []dispatch.Option{dispatch.WithLogger(logger)}

	l, err := loadLedger(cfg.LedgerFile)
	if err != nil {
		return nil, err
	}
	opts = append(opts, dispatch.WithLedger(l))

	if cfg.JournalDB != "" {
		db, err := storage.NewDatabase(cfg.JournalDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		turns, err := db.RecentTurns(ctx, chatID, memory.Window)
		if err != nil {
			a.Close()
			return nil, err
		}
		mem := memory.New()
		mem.Restore(turns)
		logger.Info("Restored conversation memory", zap.Int("turns", mem.Len()))
		opts = append(opts, dispatch.WithJournal(db), dispatch.WithMemory(mem))
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, dispatch.WithPublisher(pub))
	}

	cl := classifier.Chain{
		classifier.MPesa{},
		classifier.NewLLM(completer, cfg.TerminationToken, logger),
	}
	a.dispatcher = dispatch.New(dispatch.Config{
		TerminationToken: cfg.TerminationToken,
		LedgerPath:       cfg.LedgerFile,
	}, cl, completer, sender, opts...)
	return a, nil
}

// loadLedger reads the ledger file. A missing file starts an empty ledger.
func loadLedger(path string) (*ledger.Ledger, error) {
	l := ledger.New()
	report, err := l.LoadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No ledger file yet, starting empty", zap.String("path", path))
	case err != nil:
		return nil, err
	default:
		logger.Info("Loaded ledger",
			zap.String("path", path),
			zap.Int("entries", report.Loaded),
			zap.Int("skipped", report.Skipped))
		if report.Skipped > 0 {
			logger.Warn("Skipped unreadable ledger lines", zap.Ints("lines", report.SkippedLines))
		}
	}
	return l, nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	persona, err := llm.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return nil, err
	}

	var c llm.Completer
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err = llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, persona)
	case config.ProviderOpenAI:
		c, err = llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, persona)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Language model ready", zap.String("provider", cfg.LLMProvider))
	return llm.WithTimeout(c, cfg.LLMTimeout), nil
}
