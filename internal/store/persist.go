package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/factrag/internal/model"
)

// persistAsync writes the backfilled fact base in the background.
// Failures are logged and never reach the caller of Load.
func (s *Store) persistAsync(raw map[string]json.RawMessage, fb model.FactBase) {
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()

		if err := writeFactBase(s.opts.PersistPath, raw, fb); err != nil {
			s.logger.Warn("failed to persist backfilled embeddings", "path", s.opts.PersistPath, "error", err)
			return
		}
		s.logger.Info("persisted backfilled embeddings", "path", s.opts.PersistPath)
	}()
}

// writeFactBase replaces the facts and embedding model of the original document
// and writes it atomically
func writeFactBase(path string, raw map[string]json.RawMessage, fb model.FactBase) error {
	doc := make(map[string]json.RawMessage, len(raw)+2)
	for k, v := range raw {
		doc[k] = v
	}

	facts, err := encode(fb.Facts)
	if err != nil {
		return fmt.Errorf("encode facts: %w", err)
	}
	doc["facts"] = facts

	embeddingModel, err := encode(fb.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("encode embedding model: %w", err)
	}
	doc["embedding_model"] = embeddingModel

	body, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".factbase-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// encode marshals with two-space indent and without HTML escaping
func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
