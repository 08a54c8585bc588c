package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
)

type CSVRenderer struct{}

func (CSVRenderer) Render(_ context.Context, doc Document) (io.Reader, error) {
	s, err := buildSheet(doc.Tables, doc.Table)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.headers); err != nil {
		return nil, err
	}
	if err := w.WriteAll(s.rows); err != nil {
		return nil, err
	}
	return &buf, nil
}
