package export

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Service renders documents in any supported format.
type Service struct {
	renderers map[Format]Renderer
}

func NewService() *Service {
	return &Service{renderers: map[Format]Renderer{
		FormatCSV: CSVRenderer{},
		FormatPDF: NewPDFRenderer(),
	}}
}

func (s *Service) Render(ctx context.Context, format Format, doc Document) (io.Reader, error) {
	r, ok := s.renderers[format]
	if !ok {
		return nil, ErrUnknownFormat
	}
	return r.Render(ctx, doc)
}

var Module = fx.Module("export",
	fx.Provide(NewService),
)
