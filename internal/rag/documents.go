package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// DeleteDocument removes every vector a document produced.
//
// A missing namespace or a document without mappings is not an error.
// Mapping rows are deleted before the vectors, so a failure in between
// leaves orphaned vectors rather than rows pointing at nothing.
func (s *Service) DeleteDocument(ctx context.Context, ns, docID string) error {
	ctx, span := tracer.Start(ctx, "Service.DeleteDocument")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns), attribute.String("document.id", docID))

	if ns == "" {
		return fmt.Errorf("%w: no namespace value provided", vectorstore.ErrInvalidArgument)
	}
	ctx = logging.WithDocumentID(logging.WithNamespace(ctx, ns), docID)

	coll := s.namespaces.GetOrNil(ctx, ns)
	if coll == nil {
		s.logger.Info(ctx, "namespace not found, nothing to delete")
		return nil
	}

	rows, err := s.mappings.Where(ctx, docID)
	if err != nil {
		return fmt.Errorf("loading document vectors: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.VectorID
	}

	if err := s.mappings.DeleteForDocument(ctx, docID); err != nil {
		return fmt.Errorf("deleting document vectors: %w", err)
	}

	if err := coll.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting vectors of %s: %w", docID, err)
	}

	span.SetAttributes(attribute.Int("vectors", len(ids)))
	s.logger.Info(ctx, "document deleted", zap.Int("vectors", len(ids)))
	return nil
}
