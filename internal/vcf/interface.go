// Package vcf provides VCF file parsing functionality.
package vcf

// VariantParser is the interface for parsers that read variants.
type VariantParser interface {
	// Next reads the next variant.
	// Returns nil, nil when there are no more variants.
	Next() (*Variant, error)

	// Header returns the header lines read before the first record.
	Header() []string

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

// VariantWriter is the interface for sinks that write variants back out.
type VariantWriter interface {
	WriteHeader(lines []string) error
	Write(v *Variant) error
	Flush() error
}
