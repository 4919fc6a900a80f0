package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/chunk"
	"github.com/fyrsmithlabs/checkd/internal/retrieval"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Split and index documents into the vector store",
	Long: `Ingest a document file or a directory of documents. Each document is
split into overlapping scored chunks and indexed for retrieval.
Re-ingesting a document overwrites its chunks.

Examples:
  # Ingest a single document
  checkd ingest docs/sensors.md

  # Ingest every .md and .txt file under a directory
  checkd ingest docs/`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	splitter := chunk.Splitter{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap}
	chunks, err := collectChunks(splitter, args[0])
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(fmt.Errorf("no ingestable documents under %s", args[0]))
	}

	store, err := retrieval.NewStore(retrieval.Config{
		Path:       cfg.Retrieval.Path,
		Collection: cfg.Retrieval.Collection,
		EmbedURL:   cfg.Retrieval.EmbedURL,
		EmbedModel: cfg.Retrieval.EmbedModel,
	}, logger)
	if err != nil {
		return fail(err)
	}

	if err := store.Ingest(cmd.Context(), chunks); err != nil {
		return fail(err)
	}

	logger.Info("ingestion complete",
		zap.String("path", args[0]),
		zap.Int("chunks", len(chunks)))
	fmt.Printf("ingested %d chunk(s) from %s\n", len(chunks), args[0])
	return nil
}

// ingestExtensions are the document types picked up from a directory.
var ingestExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// collectChunks splits the document at path, or every document under it when
// path is a directory. Chunk sources are slash paths relative to path's
// parent so IDs stay stable across machines.
func collectChunks(splitter chunk.Splitter, path string) ([]chunk.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return splitFile(splitter, path, filepath.Base(path))
	}

	var chunks []chunk.Chunk
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ingestExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}

		rel, err := filepath.Rel(path, p)
		if err != nil {
			rel = filepath.Base(p)
		}

		cs, err := splitFile(splitter, p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		chunks = append(chunks, cs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return chunks, nil
}

func splitFile(splitter chunk.Splitter, path, source string) ([]chunk.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return splitter.Split(string(content), source)
}
