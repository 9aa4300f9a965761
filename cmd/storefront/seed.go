package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/nadhir24/bima-back-sub000/internal/repository"
	"github.com/rs/zerolog"
)

// seedVariants upserts every variant listed in the JSON file at path.
func seedVariants(ctx context.Context, store repository.Store, path string, log zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var variants []domain.Variant
	if err := json.Unmarshal(data, &variants); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i := range variants {
		v := &variants[i]
		if v.ID <= 0 || v.Quantity < 0 || v.Price < 0 || v.Currency == "" {
			return fmt.Errorf("invalid variant at index %d (id %d)", i, v.ID)
		}
		if err := store.UpsertVariant(ctx, v); err != nil {
			return fmt.Errorf("failed to upsert variant %d: %w", v.ID, err)
		}
	}

	log.Info().Int("variants", len(variants)).Str("file", path).Msg("variants seeded")
	return nil
}
