package gradebook

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

const (
	utf8BOM   = "\ufeff"
	ungraded  = "-"
	CSVType   = "text/csv; charset=utf-8"
	csvHeader = "Name"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ExportArchiver keeps a copy of generated exports.
type ExportArchiver interface {
	// Archive stores the content under key and returns its location.
	Archive(ctx context.Context, key, contentType string, content []byte) (string, error)
}

// WriteCSV writes the formatted students as CSV, columns following the order of tests.
// Ungraded cells hold "-". The percentage is computed against MaxPossible.
func WriteCSV(w io.Writer, students []FormattedStudent, tests []Test) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return errors.Wrap(err, "writing BOM")
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(tests)+3)
	header = append(header, csvHeader)
	for _, t := range tests {
		header = append(header, fmt.Sprintf("%s (%s)", t.Name, formatNumber(t.MaxGrade)))
	}
	header = append(header, "Total", "Percentage")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for _, st := range students {
		record := make([]string, 0, len(header))
		record = append(record, st.Name)
		for _, t := range tests {
			if v := st.Grades[t.ID]; v != nil {
				record = append(record, formatNumber(*v))
			} else {
				record = append(record, ungraded)
			}
		}
		record = append(record, formatNumber(st.Total), percentage(st.Total, st.MaxPossible))
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flushing csv")
	}
	return nil
}

// ExportCSV renders the current state of the store as CSV.
func (s *Store) ExportCSV() ([]byte, error) {
	formatted, tests := s.exportView()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, formatted, tests); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Store) exportView() ([]FormattedStudent, []Test) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return formatStudents(s.students, s.tests, s.grades), append([]Test{}, s.tests...)
}

// ExportFormat is the file format of an export.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ParseExportFormat maps an empty value to FormatCSV.
func ParseExportFormat(v string) (ExportFormat, error) {
	switch f := ExportFormat(v); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatPDF:
		return f, nil
	}
	return "", core.NewValidationError(errors.Wrapf(ErrUnknownFormat, "%q", v))
}

// ContentType is the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatPDF {
		return PDFType
	}
	return CSVType
}

// Export renders the store in the given format.
func (s *Store) Export(format ExportFormat) ([]byte, error) {
	if format == FormatPDF {
		return s.ExportPDF()
	}
	return s.ExportCSV()
}

// ArchiveCSV exports the store as CSV and hands the file to the archiver.
func ArchiveCSV(ctx context.Context, store *Store, archiver ExportArchiver, now time.Time) (string, error) {
	return Archive(ctx, store, archiver, FormatCSV, now)
}

// Archive exports the store and hands the file to the archiver.
func Archive(ctx context.Context, store *Store, archiver ExportArchiver, format ExportFormat, now time.Time) (string, error) {
	content, err := store.Export(format)
	if err != nil {
		return "", errors.Wrapf(err, "exporting %s", format)
	}
	key := ExportKey(store.Owner(), format, now)
	location, err := archiver.Archive(ctx, key, format.ContentType(), content)
	if err != nil {
		return "", errors.Wrap(err, "archiving export")
	}
	return location, nil
}

// ExportKey names an export file of the owner.
func ExportKey(ownerID string, format ExportFormat, now time.Time) string {
	return fmt.Sprintf("%s/grades-%s.%s", ownerID, now.UTC().Format("20060102T150405Z"), format)
}

func percentage(total, maxPossible float64) string {
	if maxPossible <= 0 {
		return ungraded
	}
	return strconv.FormatFloat(round1(total/maxPossible*100), 'f', 1, 64) + "%"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
