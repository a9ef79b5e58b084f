// Package store persists scrape results keyed by recipient and subject substring.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
)

const (
	filePrefix = "email_results_"
	fileExt    = ".json"

	// maxFileName stays under NAME_MAX (255 bytes) on common filesystems.
	maxFileName = 200
	hashSep     = '~'
)

// FileName returns the artifact name for key. Valid UTF-8 is kept as is;
// path separators, '%', '_', '~', reserved and control bytes are
// percent-encoded, so distinct keys never share a file. Names longer than
// maxFileName are cut and suffixed with '~' and a hash of the raw key.
func FileName(key scrape.Key) string {
	body := escape(key.Recipient) + "_" + escape(key.SubjectSubstring)

	if len(filePrefix)+len(body)+len(fileExt) <= maxFileName {
		return filePrefix + body + fileExt
	}

	sum := sha256.Sum256([]byte(key.Recipient + "\x00" + key.SubjectSubstring))
	suffix := string(hashSep) + hex.EncodeToString(sum[:16])
	room := maxFileName - len(filePrefix) - len(fileExt) - len(suffix)

	return filePrefix + truncate(body, room) + suffix + fileExt
}

func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, "%%%02X", s[i])
			i++
			continue
		}
		if r < utf8.RuneSelf && unsafeByte(byte(r)) {
			fmt.Fprintf(&b, "%%%02X", byte(r))
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func unsafeByte(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '/', '\\', '%', '_', hashSep, ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return false
}

// truncate cuts an escaped string to at most n bytes without splitting a
// rune or a %XX sequence.
func truncate(s string, n int) string {
	i := 0
	for i < len(s) {
		step := 3
		if s[i] != '%' {
			_, step = utf8.DecodeRuneInString(s[i:])
		}
		if i+step > n {
			break
		}
		i += step
	}
	return s[:i]
}

// NewFileSink writes one indented JSON document per key into dir.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir}
}

// FileSink stores results as JSON files.
type FileSink struct {
	dir string
}

// Path returns the location of the artifact for key.
func (s *FileSink) Path(key scrape.Key) string {
	return filepath.Join(s.dir, FileName(key))
}

// Save replaces the artifact for key. The file is renamed into place.
func (s *FileSink) Save(_ context.Context, key scrape.Key, results scrape.ResultSet) error {
	if results == nil {
		results = scrape.ResultSet{}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".email_results-*.tmp")
	if err != nil {
		return fmt.Errorf("os.CreateTemp failed: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tmp.Chmod failed: %w", err)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tmp.Close failed: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path(key)); err != nil {
		return fmt.Errorf("os.Rename failed: %w", err)
	}

	return nil
}

// Load reads the artifact for key. Nothing on the request path reads
// artifacts back; Load exists for inspection and tests.
func (s *FileSink) Load(_ context.Context, key scrape.Key) (scrape.ResultSet, error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		return nil, fmt.Errorf("os.Open failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	var results scrape.ResultSet
	if err := json.NewDecoder(f).Decode(&results); err != nil {
		return nil, fmt.Errorf("json.NewDecoder.Decode failed: %w", err)
	}

	return results, nil
}
