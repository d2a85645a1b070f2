// Package onnx runs all-MiniLM-L6-v2 locally through ONNX Runtime.
//
// The Embedder is only compiled with -tags onnx since it needs the
// onnxruntime shared library. The WordPiece Tokenizer has no such
// requirement.
package onnx
