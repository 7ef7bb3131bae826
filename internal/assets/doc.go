// Package assets scans and validates the ordered collection of local asset
// pairs that a deployment run registers on-chain.
//
// The assets directory follows a fixed naming convention: each item occupies
// index N with a metadata file N.json and a media file N.<ext> (png, jpg,
// jpeg, or gif), optionally joined by an animation file N.<ext> (mp4, mov,
// or webm). Indices must be contiguous from zero. A Set is immutable once
// Scan returns; every later stage reads from it and never writes.
package assets
