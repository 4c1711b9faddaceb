// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"errors"
	"fmt"
	"strings"
)

// Class is the variant class a model is trained for.
type Class string

const (
	ClassSNP   Class = "SNP"
	ClassIndel Class = "INDEL"
)

// ErrInvalidClass is returned by ParseClass for anything other than SNP or INDEL.
var ErrInvalidClass = errors.New("--type takes only values SNP or INDEL")

// ParseClass parses a variant class name, case-insensitively.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToUpper(strings.TrimSpace(s))) {
	case ClassSNP:
		return ClassSNP, nil
	case ClassIndel:
		return ClassIndel, nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidClass, s)
}

// Variant represents a single record of a VCF file.
// Columns are kept as read so a record can be written back unchanged.
type Variant struct {
	Chrom  string // Chromosome name (e.g., "12", "chr12")
	Pos    int64  // 1-based genomic position
	ID     string // Variant identifier (e.g., rs ID)
	Ref    string // Reference allele
	Alt    string // Alternate allele(s), comma-separated for multi-allelic sites
	Qual   string // Quality column, verbatim
	Filter string // Filter status (PASS, "." or filter names)
	Info   string // Raw INFO column
	Format string // FORMAT column (':'-separated keys)
	Calls  string // First sample column

	// ExtraSamples holds any sample columns after the first, verbatim.
	ExtraSamples []string

	posText string // POS as read, written back in place of Pos when set
	crlf    bool   // record line ended in "\r\n"
}

// AltAlleles returns the alternate alleles of the record.
func (v *Variant) AltAlleles() []string {
	return strings.Split(v.Alt, ",")
}

// IsSNP reports whether the record is treated as a SNP.
// Single-base REF is required; a multi-allelic site is a SNP when its first
// or second alternate allele is a single base.
func (v *Variant) IsSNP() bool {
	if len(v.Ref) != 1 {
		return false
	}
	if !strings.Contains(v.Alt, ",") {
		return len(v.Alt) == 1
	}
	alts := v.AltAlleles()
	return len(alts[0]) == 1 || len(alts[1]) == 1
}

// Class returns ClassSNP or ClassIndel for the record.
func (v *Variant) Class() Class {
	if v.IsSNP() {
		return ClassSNP
	}
	return ClassIndel
}
