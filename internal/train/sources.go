package train

import (
	"os"
	"time"

	"github.com/ellis-anderson/evf/internal/gbtree"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// modelSources fingerprints every input of the pairs for model provenance.
func modelSources(pairs []Pair) ([]gbtree.Source, error) {
	var out []gbtree.Source
	for _, p := range pairs {
		for _, in := range []struct {
			path  string
			label int
		}{{p.TruePos, LabelTruePositive}, {p.FalsePos, LabelFalsePositive}} {
			fp, err := StatFile(in.path)
			if err != nil {
				return nil, err
			}
			out = append(out, gbtree.Source{
				Path:    fp.Path,
				Label:   in.label,
				Size:    fp.Size,
				ModTime: fp.ModTime,
			})
		}
	}
	return out, nil
}
