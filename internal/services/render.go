package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-billing/internal/models"
	"github.com/google/uuid"
)

// Renderer produces a rendered artifact for a document and returns its URL.
type Renderer interface {
	Render(ctx context.Context, doc models.Document) (string, error)
}

// RendererFunc is an adapter to allow the use of a plain function as a Renderer.
type RendererFunc func(ctx context.Context, doc models.Document) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, doc models.Document) (string, error) {
	return f(ctx, doc)
}

// LinkRenderer names artifacts under BaseURL without producing file content;
// an upload pipeline is expected to fill the location.
// Each call yields a new artifact name, so a stored URL is never reproduced.
type LinkRenderer struct {
	BaseURL string
}

// Render implements Renderer.
func (r LinkRenderer) Render(_ context.Context, doc models.Document) (string, error) {
	if doc.DocumentNumber() == "" {
		return "", fmt.Errorf("render %s %d: document has no number", doc.Kind(), doc.DocumentID())
	}
	base := strings.TrimRight(r.BaseURL, "/")
	return fmt.Sprintf("%s/%s/%s-%s-%s.pdf",
		base, doc.Kind().Table(), doc.DocumentNumber(), doc.State().Status, uuid.NewString()), nil
}
