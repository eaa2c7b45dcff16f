// Package ai defines the embedding interface consumed by the ingestion
// pipeline, along with provider configuration.
//
// The Embedder abstraction keeps the pipeline independent of any
// particular model server. The ollama subpackage provides the real
// implementation; the mock subpackage provides a deterministic test
// double.
package ai
