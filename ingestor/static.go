package ingestor

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

var (
	ErrParse     = errors.New("ingestor: invalid key")
	ErrKeyRange  = errors.New("ingestor: key exceeds key width")
	ErrTruncated = errors.New("ingestor: truncated binary key")
	ErrFormat    = errors.New("ingestor: unknown format")
)

// Format is the on-disk layout of a key file.
type Format uint8

const (
	// FormatText is whitespace separated decimal keys.
	FormatText Format = iota
	// FormatBinary is little-endian keys of the key type's width.
	FormatBinary
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "binary", "bin":
		return FormatBinary, nil
	default:
		return FormatText, fmt.Errorf("%w: %q", ErrFormat, s)
	}
}

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// keyMask selects the low keyBits of a uint64.
func keyMask(keyBits int) uint64 {
	if keyBits >= 64 || keyBits <= 0 {
		return ^uint64(0)
	}
	return 1<<uint(keyBits) - 1
}

// openDecompressed opens path and unwraps .gz or .zst content.
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		return &stackedCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("zstd %s: %w", path, err)
		}
		rc := dec.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	default:
		return f, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadKeys loads a key file. Keys wider than keyBits are rejected.
func ReadKeys[K constraints.Unsigned](path string, format Format, keyBits int) ([]K, error) {
	r, err := openDecompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	keys, err := ParseKeys[K](r, format, keyBits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	klog.V(2).Infof("ingestor: read %d %s keys from %s", len(keys), format, path)
	return keys, nil
}

// ParseKeys decodes keys from r.
func ParseKeys[K constraints.Unsigned](r io.Reader, format Format, keyBits int) ([]K, error) {
	switch format {
	case FormatText:
		return parseText[K](r, keyBits)
	case FormatBinary:
		return parseBinary[K](r, keyBits)
	default:
		return nil, fmt.Errorf("%w: %d", ErrFormat, format)
	}
}

func parseText[K constraints.Unsigned](r io.Reader, keyBits int) ([]K, error) {
	var zero K
	typeBits := int(unsafe.Sizeof(zero)) * 8
	mask := keyMask(keyBits)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	var keys []K
	for token := 0; scanner.Scan(); token++ {
		v, err := parseKey(scanner.Text(), typeBits, mask)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", token, err)
		}
		keys = append(keys, K(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func parseKey(s string, typeBits int, mask uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, typeBits)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrParse, s, err)
	}
	if v&^mask != 0 {
		return 0, fmt.Errorf("%w: %d", ErrKeyRange, v)
	}
	return v, nil
}

func parseBinary[K constraints.Unsigned](r io.Reader, keyBits int) ([]K, error) {
	var zero K
	size := int(unsafe.Sizeof(zero))
	mask := keyMask(keyBits)

	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 8)
	var keys []K
	for {
		_, err := io.ReadFull(br, buf[:size])
		if err == io.EOF {
			return keys, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w after %d keys", ErrTruncated, len(keys))
		}
		if err != nil {
			return nil, err
		}
		clear(buf[size:])
		v := binary.LittleEndian.Uint64(buf)
		if v&^mask != 0 {
			return nil, fmt.Errorf("key %d: %w: %d", len(keys), ErrKeyRange, v)
		}
		keys = append(keys, K(v))
	}
}
