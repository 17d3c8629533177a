package loader

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// CountLines returns the number of newline-terminated records in path,
// plus one for a trailing record without a newline
func CountLines(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, domain.NewIOError("open", path, err)
	}
	defer f.Close()
	return countLines(f, path)
}

func countLines(r io.Reader, path string) (uint64, error) {
	var (
		buf   = make([]byte, 32*1024)
		count uint64
		last  byte = '\n'
	)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += uint64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, domain.NewIOError("read", path, err)
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}
