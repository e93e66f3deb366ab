package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"image-tagger/internal/filesystem"
	"image-tagger/internal/metrics"
)

// Policy selects how file content contributes to a fingerprint.
type Policy string

const (
	PolicySHA256    Policy = "sha256"
	PolicyBLAKE3    Policy = "blake3"
	PolicySizeMtime Policy = "size-mtime"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicySHA256

// ParsePolicy validates a policy name. Empty selects DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultPolicy, nil
	case PolicySHA256, PolicyBLAKE3, PolicySizeMtime:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fingerprint policy %q (want sha256, blake3 or size-mtime)", s)
	}
}

// Hashes reports whether the policy reads file content.
func (p Policy) Hashes() bool {
	return p == PolicySHA256 || p == PolicyBLAKE3
}

// Fingerprint identifies one version of a file.
type Fingerprint struct {
	Checksum string // "<algorithm>:<hex>", empty under size-mtime
	Size     int64
	ModTime  time.Time
}

// IsZero reports whether f was never computed.
func (f Fingerprint) IsZero() bool {
	return f.Size == 0 && f.ModTime.IsZero() && f.Checksum == ""
}

// Algorithm returns the checksum prefix, or "" when there is no checksum.
func (f Fingerprint) Algorithm() string {
	algo, _, ok := strings.Cut(f.Checksum, ":")
	if !ok {
		return ""
	}
	return algo
}

// Differs reports whether current describes different content than stored.
// Size and mtime always count; checksums only count when both were computed
// with the same algorithm.
func Differs(stored, current Fingerprint) bool {
	if stored.Size != current.Size || !stored.ModTime.Equal(current.ModTime) {
		return true
	}
	if stored.Checksum == "" || current.Checksum == "" {
		return false
	}
	if stored.Algorithm() != current.Algorithm() {
		return false
	}
	return stored.Checksum != current.Checksum
}

// Compute fingerprints the file at path under policy.
func Compute(path string, policy Policy) (fp Fingerprint, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			metrics.FingerprintDuration.WithLabelValues(string(policy)).Observe(time.Since(start).Seconds())
		}
	}()

	if !policy.Hashes() {
		info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil {
			return Fingerprint{}, err
		}
		if !info.Mode().IsRegular() {
			return Fingerprint{}, fmt.Errorf("%s is not a regular file", path)
		}
		return Fingerprint{Size: info.Size(), ModTime: info.ModTime()}, nil
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Fingerprint{}, fmt.Errorf("%s is not a regular file", path)
	}

	h := newHash(policy)
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Fingerprint{}, fmt.Errorf("read %s: %w", path, err)
	}

	return Fingerprint{
		Checksum: string(policy) + ":" + hex.EncodeToString(h.Sum(nil)),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

func newHash(policy Policy) hash.Hash {
	if policy == PolicyBLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}
