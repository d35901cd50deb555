package runner

import (
	"bufio"
	"io"
	"strings"
)

const (
	// scanBufSize and maxScanToken size the line scanner. Build tools
	// occasionally emit very long lines (minified bundles, progress
	// bars); a 1 MiB ceiling keeps those from aborting the scan.
	scanBufSize  = 64 * 1024
	maxScanToken = 1024 * 1024
)

// tailBuffer retains the last max lines fed to it. max <= 0 keeps
// everything.
type tailBuffer struct {
	max   int
	lines []string
}

func newTail(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if t.max > 0 && len(t.lines) > t.max {
		t.lines = t.lines[1:]
	}
}

// consume scans r to EOF, retaining the tail. The returned error is the
// scanner's; a pipe closed by process teardown surfaces as os.ErrClosed.
func (t *tailBuffer) consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, scanBufSize), maxScanToken)
	for sc.Scan() {
		t.add(sc.Text())
	}
	return sc.Err()
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
