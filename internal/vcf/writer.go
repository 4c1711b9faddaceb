package vcf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Writer writes VCF header lines and records.
type Writer struct {
	w    *bufio.Writer
	gz   *gzip.Writer
	file *os.File
}

// NewWriter creates a VCF writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// CreateWriter creates the output file at path ("-" for stdout).
// Paths ending in .gz are gzip-compressed.
func CreateWriter(path string) (*Writer, error) {
	if path == "-" {
		return NewWriter(os.Stdout), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	vw := &Writer{file: f}
	if strings.HasSuffix(path, ".gz") {
		vw.gz = gzip.NewWriter(f)
		vw.w = bufio.NewWriter(vw.gz)
	} else {
		vw.w = bufio.NewWriter(f)
	}
	return vw, nil
}

// WriteHeader writes header lines as given.
func (vw *Writer) WriteHeader(lines []string) error {
	for _, line := range lines {
		if _, err := vw.w.WriteString(line); err != nil {
			return err
		}
		if err := vw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Write writes a single record.
func (vw *Writer) Write(v *Variant) error {
	var lb strings.Builder
	lb.Grow(len(v.Info) + len(v.Calls) + 64)

	lb.WriteString(v.Chrom)
	lb.WriteByte('\t')
	if v.posText != "" {
		lb.WriteString(v.posText)
	} else {
		lb.WriteString(strconv.FormatInt(v.Pos, 10))
	}
	lb.WriteByte('\t')
	lb.WriteString(v.ID)
	lb.WriteByte('\t')
	lb.WriteString(v.Ref)
	lb.WriteByte('\t')
	lb.WriteString(v.Alt)
	lb.WriteByte('\t')
	lb.WriteString(v.Qual)
	lb.WriteByte('\t')
	lb.WriteString(v.Filter)
	lb.WriteByte('\t')
	lb.WriteString(v.Info)
	lb.WriteByte('\t')
	lb.WriteString(v.Format)
	lb.WriteByte('\t')
	lb.WriteString(v.Calls)
	for _, s := range v.ExtraSamples {
		lb.WriteByte('\t')
		lb.WriteString(s)
	}
	if v.crlf {
		lb.WriteByte('\r')
	}
	lb.WriteByte('\n')

	_, err := vw.w.WriteString(lb.String())
	return err
}

// Flush flushes buffered output.
func (vw *Writer) Flush() error {
	return vw.w.Flush()
}

// Close flushes and closes the writer and any file it created.
func (vw *Writer) Close() error {
	if err := vw.w.Flush(); err != nil {
		return err
	}
	if vw.gz != nil {
		if err := vw.gz.Close(); err != nil {
			return err
		}
	}
	if vw.file != nil {
		return vw.file.Close()
	}
	return nil
}

// InjectFilterLines returns header with the given ##FILTER declarations
// inserted once, before the first existing ##FILTER line or, failing that,
// before #CHROM (appended if neither exists). Declarations whose ID is
// already present are not repeated.
func InjectFilterLines(header []string, defs []string) []string {
	var missing []string
	for _, def := range defs {
		if !containsLine(header, def) {
			missing = append(missing, def)
		}
	}
	if len(missing) == 0 {
		return header
	}

	at := -1
	for i, line := range header {
		if strings.HasPrefix(line, "##FILTER=") {
			at = i
			break
		}
	}
	if at < 0 {
		for i, line := range header {
			if strings.HasPrefix(line, "#CHROM") {
				at = i
				break
			}
		}
	}
	if at < 0 {
		at = len(header)
	}

	out := make([]string, 0, len(header)+len(missing))
	out = append(out, header[:at]...)
	out = append(out, missing...)
	out = append(out, header[at:]...)
	return out
}

// containsLine reports whether a ##FILTER line with the same ID as def exists.
func containsLine(header []string, def string) bool {
	id := filterID(def)
	for _, line := range header {
		if line == def || (id != "" && filterID(line) == id) {
			return true
		}
	}
	return false
}

// filterID extracts the ID from a ##FILTER=<ID=...,...> line.
func filterID(line string) string {
	rest, ok := strings.CutPrefix(line, "##FILTER=<ID=")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, ",>"); i >= 0 {
		return rest[:i]
	}
	return rest
}
