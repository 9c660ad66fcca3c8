package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"

	"github.com/omaskery/qnxtally/internal/config"
	qio "github.com/omaskery/qnxtally/pkg/io"
	"github.com/omaskery/qnxtally/pkg/report"
	"github.com/omaskery/qnxtally/pkg/store"
)

var ErrUnknownFormat = errors.New("unknown output format")

func writeOutput(cfg config.OutputConfig, bundles []qio.NamedBundle, stdout io.Writer, logger logr.Logger) error {
	switch cfg.Format {
	case config.FormatJSON:
		return writeStream(cfg.Path, stdout, func(w io.Writer) error {
			return qio.WriteJsonObjects(w, bundles)
		})
	case config.FormatText:
		return writeStream(cfg.Path, stdout, func(w io.Writer) error {
			return report.WriteText(w, bundles)
		})
	case config.FormatSQLite:
		return writeDatabase(cfg, bundles, logger)
	}
	return fmt.Errorf("'%s': %w", cfg.Format, ErrUnknownFormat)
}

func writeStream(path string, stdout io.Writer, write func(w io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func writeDatabase(cfg config.OutputConfig, bundles []qio.NamedBundle, logger logr.Logger) error {
	s, err := store.NewSQLiteStore(cfg.Path, cfg.CleanDatabase, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, nb := range bundles {
		if err := s.SaveBundle(nb.Name, nb.Bundle); err != nil {
			return err
		}
	}
	logger.Info("wrote database", "path", cfg.Path, "traces", len(bundles))
	return nil
}
