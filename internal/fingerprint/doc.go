// Package fingerprint computes the identity of an image file on disk.
//
// A Fingerprint is the file size, modification time and, under a hashing
// policy, a content checksum prefixed with the algorithm name
// ("sha256:<hex>", "blake3:<hex>"). Three policies are available:
//
//   - sha256 (default): full-content SHA-256
//   - blake3: full-content BLAKE3, noticeably faster on large RAW-sized files
//   - size-mtime: no hashing; size and modification time only
//
// Differs is the comparison the change detector uses. Checksums computed with
// a different algorithm than the stored one are ignored, so switching policy
// does not reprocess the whole library.
package fingerprint
