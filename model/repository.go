package model

import (
	"strconv"
	"strings"
)

// Repository is one element of the organization repositories listing
type Repository struct {
	Name     string   `json:"name"`
	Topics   []string `json:"topics"`
	Archived bool     `json:"archived"`
	Language *string  `json:"language"` // nil when github detected no language
	Size     uint32   `json:"size"`     // kilobytes
}

// Row is the flattened representation written to the output
type Row struct {
	Name     string
	Topics   string
	Language string
	Size     uint32
}

// RowHeader is the column order of a Row
var RowHeader = []string{"name", "topics", "language", "size"}

// ToRow projects the repository into an output row
// topics are slugs so joining them with a space is not ambiguous
func (r Repository) ToRow() Row {
	row := Row{
		Name:   r.Name,
		Topics: strings.Join(r.Topics, " "),
		Size:   r.Size,
	}

	if r.Language != nil {
		row.Language = *r.Language
	}

	return row
}

// Record returns the row as CSV fields, in RowHeader order
func (r Row) Record() []string {
	return []string{r.Name, r.Topics, r.Language, strconv.FormatUint(uint64(r.Size), 10)}
}
