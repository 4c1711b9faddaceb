// Package features turns VCF records into the fixed-width numeric vectors
// used for both training and filtering.
package features

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ellis-anderson/evf/internal/vcf"
)

// NumFeatures is the width of a feature vector.
const NumFeatures = 11

// Column indices into a Vector.
const (
	QD = iota
	MQ
	FS
	MQRankSum
	ReadPosRankSum
	SOR
	Het
	RefDepth
	AltDepth
	RefFraction
	AltRefRatio
)

// Smoothing is added to the reference depth before dividing by it.
const Smoothing = 0.1

// Names holds the column names in vector order.
var Names = [NumFeatures]string{
	"QD", "MQ", "FS", "MQRankSum", "ReadPosRankSum", "SOR",
	"0/1", "RefD", "AltD", "RDper", "ADrat",
}

// infoKeys are the INFO fields kept, in vector order.
var infoKeys = [...]string{"QD", "MQ", "FS", "MQRankSum", "ReadPosRankSum", "SOR"}

// Vector is the feature vector of one record.
type Vector [NumFeatures]float64

// Info holds the recognized INFO values of a record. Missing keys are zero.
type Info [len(infoKeys)]float64

// Calls holds the values derived from a record's sample column.
type Calls struct {
	Het         float64 // 1 when GT is 0/1
	RefDepth    float64
	AltDepth    float64
	RefFraction float64 // RefDepth / (RefDepth + AltDepth), NaN when both are zero
	AltRefRatio float64 // AltDepth / (RefDepth + Smoothing)
}

// FieldError reports a value that could not be parsed as a number.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// SplitInfo extracts the recognized key=value pairs from an INFO column.
func SplitInfo(info string) (Info, error) {
	var out Info
	if info == "" || info == "." {
		return out, nil
	}

	for _, part := range strings.Split(info, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		idx := infoIndex(key)
		if idx < 0 {
			continue
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return out, &FieldError{Field: key, Value: val, Err: err}
		}
		out[idx] = f
	}
	return out, nil
}

func infoIndex(key string) int {
	for i, k := range infoKeys {
		if k == key {
			return i
		}
	}
	return -1
}

// SplitCalls extracts genotype and allelic-depth features from a sample column
// described by format.
func SplitCalls(format, calls string) (Calls, error) {
	var c Calls

	keys := strings.Split(format, ":")
	values := strings.Split(calls, ":")

	var gt, ad string
	for i, k := range keys {
		if i >= len(values) {
			break
		}
		switch k {
		case "GT":
			gt = values[i]
		case "AD":
			ad = values[i]
		}
	}

	if gt == "0/1" {
		c.Het = 1
	}

	if ad != "" && ad != "." {
		depths := strings.Split(ad, ",")
		ref, err := parseDepth(depths[0])
		if err != nil {
			return c, err
		}
		c.RefDepth = ref
		if len(depths) > 1 {
			alt, err := parseDepth(depths[1])
			if err != nil {
				return c, err
			}
			c.AltDepth = alt
		}
	}

	c.RefFraction = c.RefDepth / (c.RefDepth + c.AltDepth)
	c.AltRefRatio = c.AltDepth / (c.RefDepth + Smoothing)
	return c, nil
}

func parseDepth(s string) (float64, error) {
	if s == "." {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FieldError{Field: "AD", Value: s, Err: err}
	}
	return f, nil
}

// Extract builds the feature vector of a record.
func Extract(v *vcf.Variant) (Vector, error) {
	var vec Vector

	info, err := SplitInfo(v.Info)
	if err != nil {
		return vec, fmt.Errorf("%s:%d: %w", v.Chrom, v.Pos, err)
	}
	calls, err := SplitCalls(v.Format, v.Calls)
	if err != nil {
		return vec, fmt.Errorf("%s:%d: %w", v.Chrom, v.Pos, err)
	}

	copy(vec[:len(info)], info[:])
	vec[Het] = calls.Het
	vec[RefDepth] = calls.RefDepth
	vec[AltDepth] = calls.AltDepth
	vec[RefFraction] = calls.RefFraction
	vec[AltRefRatio] = calls.AltRefRatio
	return vec, nil
}
