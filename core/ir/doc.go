// Package ir provides the shared model of a rendered TEI document.
//
// A rendered document lives in three coordinate spaces:
//
//   - source: byte offsets into the markup
//   - base: rune offsets into the rendered text before footnote markers
//   - display: rune offsets into the text shown to the reader, with markers
//
// # Core Types
//
//   - Segment: a run of rendered text owned by one synchronization token
//     (line break, page break, identified paragraph, anchor, fascicle marker)
//   - Annotation: a footnote anchored to a base-text position
//   - MarkerSpan: the extent of an inserted footnote marker in display text
//
// # Segment Keys
//
// A segment key names the synchronization token that opened a segment. Keys
// have the grammar tag or tag|value|value, for example "lb|0001a01|T" or
// "p|p5". Two renderings of the same work that share a key are aligned at
// that token.
//
// # Fingerprints
//
// Markup is fingerprinted with BLAKE3 so rendered documents can be cached and
// stored by content rather than by path.
package ir
