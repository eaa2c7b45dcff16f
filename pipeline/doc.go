// Package pipeline implements the chunk, batch-embed, and fan-out-write
// stages of corpus ingestion.
//
// Documents are pulled one at a time from a source, split into
// bounded overlapping chunks, accumulated into fixed-size embedding
// batches, and written to the configured sinks in embedding order. A
// per-document page aggregator reconstructs Markdown pages from the
// batch-interleaved chunk stream.
//
// Failure containment: a document that cannot be chunked is skipped, a
// batch that permanently fails embedding is skipped, and both are
// counted in the run summary. Only cancellation or a sink delivery
// fault stops the run, and even then finalization flushes the partial
// batch and force-flushes incomplete pages so no sink is left torn.
package pipeline
