package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/ChristianF88/pradix/ingestor"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/constraints"
)

// WriteKeys writes keys to w, one decimal per line or little-endian binary.
func WriteKeys[K constraints.Unsigned](w io.Writer, keys []K, format ingestor.Format) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	var zero K
	size := int(unsafe.Sizeof(zero))
	buf := make([]byte, 0, 24)

	for _, k := range keys {
		buf = buf[:0]
		switch format {
		case ingestor.FormatBinary:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(k))[:size]
		default:
			buf = strconv.AppendUint(buf, uint64(k), 10)
			buf = append(buf, '\n')
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteKeysFile writes keys to path. A .gz or .zst suffix compresses the file.
func WriteKeysFile[K constraints.Unsigned](path string, keys []K, format ingestor.Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create key file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.WriteCloser
	switch {
	case strings.HasSuffix(path, ".gz"):
		w = gzip.NewWriter(f)
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("zstd %s: %w", path, err)
		}
		w = enc
	default:
		return WriteKeys(f, keys, format)
	}

	if err := WriteKeys(w, keys, format); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
