//go:build !onnx

package main

import (
	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/memory/embedder/mock"
)

// newEmbedder falls back to the deterministic hash embedder when the binary
// is built without the onnx tag. Good enough for development; recall quality
// needs a real model.
func newEmbedder(cfg *config.Config, logger *log.Logger) (memory.Embedder, error) {
	logger.Warn("no embedding model compiled in, using hash embedder (build with -tags onnx for real embeddings)")
	return mock.New(), nil
}
