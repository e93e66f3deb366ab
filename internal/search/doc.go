// Package search keeps a full-text index of generated image descriptions and
// tags, backed by bleve.
package search
