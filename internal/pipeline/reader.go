package pipeline

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineReader yields input lines one at a time. Malformed UTF-8 is replaced
// with U+FFFD and a leading BOM is dropped, so bad bytes never abort a run.
type LineReader struct {
	r   *bufio.Reader
	err error
}

// NewLineReader wraps r with tolerant UTF-8 decoding.
func NewLineReader(r io.Reader) *LineReader {
	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	return &LineReader{r: bufio.NewReaderSize(decoded, 64*1024)}
}

// Next returns the next line without its line terminator. It returns io.EOF
// once the input is exhausted; any other error is a read failure.
func (l *LineReader) Next() (string, error) {
	if l.err != nil {
		return "", l.err
	}
	line, err := l.r.ReadString('\n')
	if err != nil {
		l.err = err
		if line == "" {
			return "", err
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}
