package gradebook

import (
	"context"
	"encoding/csv"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

var (
	nameSeparators = regexp.MustCompile(`[\n,;]+`)

	ErrNoNames = errors.New("no valid names to import")
)

type ImportResult struct {
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors"`
	Students []Student `json:"students"`
}

// ParseNames splits pasted text on new lines, commas and semicolons.
// Names are trimmed; blanks and repeated names are dropped, first occurrence wins.
func ParseNames(text string) []string {
	return uniqueNames(nameSeparators.Split(strings.ReplaceAll(text, "\r", ""), -1))
}

// ParseCSVNames reads the first column of a CSV document. A "name" cell is only a header on the first row.
func ParseCSVNames(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var raw []string
	for first := true; ; first = false {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		if len(record) == 0 {
			continue
		}
		name := strings.Trim(strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff")), `"'`)
		if first && strings.EqualFold(name, "name") {
			continue
		}
		raw = append(raw, name)
	}
	return uniqueNames(raw), nil
}

func uniqueNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = core.CleanString(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ImportStudents adds the students one by one. A failing name does not stop the others.
func ImportStudents(ctx context.Context, store *Store, ownerID string, names []string) (ImportResult, error) {
	if len(names) == 0 {
		return ImportResult{}, core.NewValidationError(ErrNoNames)
	}

	res := ImportResult{Errors: []string{}, Students: []Student{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st, err := store.AddStudent(ctx, ownerID, name)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, name+": "+errors.Cause(err).Error())
			continue
		}
		res.Success++
		res.Students = append(res.Students, st)
	}
	return res, nil
}
