// Package export writes emotion reports as an Arrow IPC stream: one row per
// analyzed text with its dominant emotion and one probability column per
// label.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/example/go-ekman/internal/emotion"
)

// Fixed column names ahead of the per-label columns.
const (
	ColText                = "text"
	ColDominantLabel       = "dominant_label"
	ColDominantProbability = "dominant_probability"
)

// Row is one analyzed input.
type Row struct {
	Text   string
	Report emotion.Report
}

// Schema returns the record schema for labels, in taxonomy order. A label
// missing from a report is written as null.
func Schema(labels []string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: ColText, Type: arrow.BinaryTypes.String},
		{Name: ColDominantLabel, Type: arrow.BinaryTypes.String},
		{Name: ColDominantProbability, Type: arrow.PrimitiveTypes.Float32},
	}

	for _, l := range labels {
		fields = append(fields, arrow.Field{Name: l, Type: arrow.PrimitiveTypes.Float32, Nullable: true})
	}

	return arrow.NewSchema(fields, nil)
}

// BuildRecord converts rows into a single record batch. The caller releases it.
func BuildRecord(mem memory.Allocator, labels []string, rows []Row) (arrow.RecordBatch, error) {
	if len(labels) == 0 {
		return nil, errors.New("at least one label column is required")
	}

	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if seen[l] || l == ColText || l == ColDominantLabel || l == ColDominantProbability {
			return nil, fmt.Errorf("label %q collides with another column", l)
		}

		seen[l] = true
	}

	textB := array.NewStringBuilder(mem)
	defer textB.Release()

	domB := array.NewStringBuilder(mem)
	defer domB.Release()

	probB := array.NewFloat32Builder(mem)
	defer probB.Release()

	labelB := make([]*array.Float32Builder, len(labels))
	for i := range labels {
		labelB[i] = array.NewFloat32Builder(mem)
		defer labelB[i].Release()
	}

	for _, r := range rows {
		textB.Append(r.Text)
		domB.Append(r.Report.DominantLabel)
		probB.Append(r.Report.DominantProbability)

		byLabel := make(map[string]float32, len(r.Report.Scores))
		for _, s := range r.Report.Scores {
			byLabel[s.Label] = s.Probability
		}

		for i, l := range labels {
			if p, ok := byLabel[l]; ok {
				labelB[i].Append(p)
			} else {
				labelB[i].AppendNull()
			}
		}
	}

	cols := []arrow.Array{textB.NewArray(), domB.NewArray(), probB.NewArray()}
	for _, fb := range labelB {
		cols = append(cols, fb.NewArray())
	}

	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecordBatch(Schema(labels), cols, int64(len(rows))), nil
}

// WriteStream writes rec to w as an Arrow IPC stream.
func WriteStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}

	return writer.Close()
}

// Write builds a record from rows and streams it to w.
func Write(w io.Writer, labels []string, rows []Row) error {
	rec, err := BuildRecord(memory.DefaultAllocator, labels, rows)
	if err != nil {
		return err
	}
	defer rec.Release()

	return WriteStream(w, rec)
}
