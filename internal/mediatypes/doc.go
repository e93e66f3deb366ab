// Package mediatypes holds the supported image set shared by the scanner,
// watcher, detector and metadata writers.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
//	if mediatypes.IsSupported(path) && !mediatypes.IsHidden(path) {
//	    // candidate
//	}
//
//	switch mediatypes.FormatForPath(path) {
//	case mediatypes.FormatJPEG, mediatypes.FormatPNG:
//	    // in-process XMP embedding is possible
//	}
//
// Extension matching is case-insensitive: ".JPG" and ".jpg" are the same.
package mediatypes
