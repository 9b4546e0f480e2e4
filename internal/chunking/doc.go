// Package chunking turns extracted document text into retrievable chunks.
//
// The pipeline for a single source is:
//
//	text := chunking.Clean(raw)
//	chunks, err := chunking.NewSplitter(1000, 200).Chunks("doc.pdf", text)
//
// Clean drops blank lines and generation artifacts. The Splitter produces
// overlapping windows that reconstruct the input exactly once the overlap
// is removed, and tags each window with a stable chunk id of the form
// "<source>_<index>".
package chunking
