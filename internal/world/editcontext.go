package world

import (
	"context"

	"github.com/wyldlands/wyldlands/internal/output"
)

// EditContext is the bookkeeping the router keeps while a session is
// Editing, set up by whatever Playing command called BeginEditing.
// OnComplete resolves the edit: it receives the final content (empty on
// cancel) and whether it was a save, and returns the output shown to the
// client on return to Playing.
type EditContext struct {
	Title              string
	OriginOpaqueHandle string
	OnComplete         func(ctx context.Context, content string, saved bool) output.Record
}
