//go:build onnx

package main

import (
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/memory/embedder/onnx"
)

// newEmbedder loads the local ONNX sentence-transformer configured under
// memory.onnx_model_path. The tokenizer.json is expected alongside the model.
func newEmbedder(cfg *config.Config, logger *log.Logger) (memory.Embedder, error) {
	dir := filepath.Dir(cfg.Memory.OnnxModelPath)
	return onnx.New(onnx.Config{
		ModelPath:     cfg.Memory.OnnxModelPath,
		TokenizerPath: filepath.Join(dir, "tokenizer.json"),
	}, logger)
}
