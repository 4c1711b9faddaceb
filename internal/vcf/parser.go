// Package vcf reads and writes single-sample VCF call sets.
package vcf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NumColumns is the number of fixed columns of a single-sample VCF record.
const NumColumns = 10

var gzipMagic = []byte{0x1f, 0x8b}

// Parser streams records from a VCF. Gzip input is detected from its magic
// bytes, so both plain and bgzipped files (and streams) are accepted.
type Parser struct {
	r       *bufio.Reader
	closers []io.Closer
	line    int
	header  []string

	// first data line, read while scanning the header
	pending    string
	hasPending bool
}

// NewParser opens the VCF at path ("-" reads stdin).
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}
	p, err := newParser(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// NewParserFromReader creates a parser over r. The caller owns r.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	return newParser(r, nil)
}

func newParser(r io.Reader, c io.Closer) (*Parser, error) {
	p := &Parser{}
	if c != nil {
		p.closers = append(p.closers, c)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	if bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.closers = append([]io.Closer{gz}, p.closers...)
		br = bufio.NewReader(gz)
	}
	p.r = br

	if err := p.readHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// readLine returns the next line without its "\n"; ok is false at EOF.
// A trailing "\r" is left in place.
func (p *Parser) readLine() (line string, ok bool, err error) {
	line, err = p.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, err
	}
	if line == "" && err == io.EOF {
		return "", false, nil
	}
	p.line++
	return strings.TrimSuffix(line, "\n"), true, nil
}

// readHeader collects every leading '#' line. The first data line, if any,
// is kept for Next.
func (p *Parser) readHeader() error {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if !ok {
			return nil
		}
		if !strings.HasPrefix(line, "#") {
			p.pending, p.hasPending = line, true
			return nil
		}
		p.header = append(p.header, strings.TrimSuffix(line, "\r"))
	}
}

// Next returns the next record, or nil, nil at end of input.
// Blank lines and '#' lines after the header are skipped.
func (p *Parser) Next() (*Variant, error) {
	for {
		var line string
		if p.hasPending {
			line, p.pending, p.hasPending = p.pending, "", false
		} else {
			var (
				ok  bool
				err error
			)
			line, ok, err = p.readLine()
			if err != nil {
				return nil, fmt.Errorf("read variant line: %w", err)
			}
			if !ok {
				return nil, nil
			}
		}

		body, crlf := strings.CutSuffix(line, "\r")
		if body == "" || body[0] == '#' {
			continue
		}
		v, err := p.parseRecord(body)
		if err != nil {
			return nil, err
		}
		v.crlf = crlf
		return v, nil
	}
}

func (p *Parser) parseRecord(line string) (*Variant, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < NumColumns {
		return nil, p.errorf("expected at least %d columns, found %d", NumColumns, len(cols))
	}

	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return nil, p.errorf("invalid position: %s", cols[1])
	}

	v := &Variant{
		Chrom:  cols[0],
		Pos:    pos,
		ID:     cols[2],
		Ref:    cols[3],
		Alt:    cols[4],
		Qual:   cols[5],
		Filter: cols[6],
		Info:   cols[7],
		Format: cols[8],
		Calls:  cols[9],
	}
	if len(cols) > NumColumns {
		v.ExtraSamples = cols[NumColumns:]
	}
	v.posText = cols[1]
	return v, nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

// Header returns the header lines in input order.
func (p *Parser) Header() []string {
	return p.header
}

// SampleNames returns the sample columns of the #CHROM line, if any.
func (p *Parser) SampleNames() []string {
	for _, line := range p.header {
		if !strings.HasPrefix(line, "#CHROM") {
			continue
		}
		if cols := strings.Split(line, "\t"); len(cols) >= NumColumns {
			return cols[NumColumns-1:]
		}
	}
	return nil
}

// LineNumber returns the number of the last line read.
func (p *Parser) LineNumber() int {
	return p.line
}

// Close releases the decompressor and the file opened by NewParser.
func (p *Parser) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// ParseError reports a malformed record with its line number.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
