package correspondence

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ransac-align/pkg/geometry"
)

// Format is an on-disk encoding of a Set.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", errors.Errorf("unsupported correspondence file %q (want .json or .csv)", path)
	}
}

// Load reads a Set from a .json or .csv file.
func Load(path string) (Set, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Set{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, errors.Wrap(err, "read correspondences")
	}
	s, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return Set{}, errors.Wrapf(err, "load %s", path)
	}
	return s, nil
}

// Save writes s to path in the format implied by its extension.
func Save(path string, s Set) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, s, format); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "write correspondences")
}

// Decode reads a Set in the given format and validates it.
func Decode(r io.Reader, format Format) (Set, error) {
	var (
		s   Set
		err error
	)
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&s)
	case FormatCSV:
		s, err = decodeCSV(r)
	default:
		err = errors.Errorf("unknown format %q", format)
	}
	if err != nil {
		return Set{}, err
	}
	return s, s.Validate()
}

// Encode writes s in the given format.
func Encode(w io.Writer, s Set, format Format) error {
	if err := s.Validate(); err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatCSV:
		return encodeCSV(w, s)
	default:
		return errors.Errorf("unknown format %q", format)
	}
}

var csvHeader = []string{"src_x", "src_y", "dst_x", "dst_y"}

// decodeCSV reads rows of src_x,src_y,dst_x,dst_y. A first row that does
// not parse as numbers is taken as a header. Lines starting with # are
// ignored.
func decodeCSV(r io.Reader) (Set, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var s Set
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Set{}, errors.Wrap(err, "parse csv")
		}
		var vals [4]float64
		var parseErr error
		for i, field := range rec {
			if vals[i], parseErr = strconv.ParseFloat(strings.TrimSpace(field), 64); parseErr != nil {
				break
			}
		}
		if parseErr != nil {
			if row == 0 {
				continue
			}
			line, _ := cr.FieldPos(0)
			return Set{}, errors.Wrapf(parseErr, "csv line %d", line)
		}
		s.Append(geometry.NewPoint2D(vals[0], vals[1]), geometry.NewPoint2D(vals[2], vals[3]))
	}
	return s, nil
}

func encodeCSV(w io.Writer, s Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i := range s.Src {
		rec := []string{format(s.Src[i].X), format(s.Src[i].Y), format(s.Dst[i].X), format(s.Dst[i].Y)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
