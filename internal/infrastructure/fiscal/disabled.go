package fiscal

import (
	"context"

	"caixa/internal/core/apperror"
	fiscaldoc "caixa/internal/domain/fiscal"
)

// Disabled is the emitter used when no A1 certificate is configured.
// Every submission fails as a transport error, so finalization still
// closes the sale and parks the receipt for re-emission once the
// terminal is configured.
type Disabled struct{}

// NewDisabled creates a disabled emitter.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Emit always reports the authority as unreachable.
func (d *Disabled) Emit(ctx context.Context, doc *fiscaldoc.Document) (*fiscaldoc.Result, error) {
	return nil, apperror.NewFiscalTransport("fiscal emission is not configured", nil)
}

var _ fiscaldoc.Emitter = (*Disabled)(nil)
