//go:build !onnx

package main

import (
	"errors"

	"github.com/becomeliminal/travel-memory/config"
	"github.com/becomeliminal/travel-memory/memory"
)

func newONNXEmbedder(config.EmbedderConfig) (memory.Embedder, func() error, error) {
	return nil, nil, errors.New("embedder onnx: binary built without onnx support, rebuild with -tags onnx")
}
