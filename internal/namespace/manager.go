// Package namespace manages the lifecycle of vector namespaces on top of a
// vectorstore.Backend.
//
// A namespace is one backend collection. Absence is part of normal control
// flow: Exists and GetOrNil report it as false/nil, while Get, Stats and
// DeleteNamespace return vectorstore.ErrNamespaceNotFound so callers decide
// whether a missing namespace is an error.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var tracer = otel.Tracer("ragstore.namespace")

// Stats is the result of the namespace-stats operation.
type Stats struct {
	Name        string `json:"name"`
	VectorCount int    `json:"vectorCount"`
}

// Manager implements namespace operations against a shared connection.
type Manager struct {
	conn   *vectorstore.Connection
	logger *logging.Logger
}

// NewManager creates a Manager. A nil logger is replaced with a no-op logger.
func NewManager(conn *vectorstore.Connection, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{conn: conn, logger: logger}
}

// Exists reports whether a namespace with this exact name exists.
//
// An empty name is an ErrInvalidArgument. Any backend failure while listing
// collections is logged and reported as false.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Manager.Exists")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	if name == "" {
		return false, fmt.Errorf("%w: no namespace value provided", vectorstore.ErrInvalidArgument)
	}

	backend, err := m.conn.Backend(ctx)
	if err != nil {
		m.logger.Warn(logging.WithNamespace(ctx, name), "namespace existence check failed", zap.Error(err))
		return false, nil
	}
	names, err := backend.ListCollections(ctx)
	if err != nil {
		m.logger.Warn(logging.WithNamespace(ctx, name), "namespace existence check failed", zap.Error(err))
		return false, nil
	}
	return slices.Contains(names, name), nil
}

// Get returns the collection for a namespace. Any lookup failure is wrapped
// in ErrNamespaceNotFound with the original cause attached.
func (m *Manager) Get(ctx context.Context, name string) (vectorstore.Collection, error) {
	backend, err := m.conn.Backend(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vectorstore.ErrNamespaceNotFound, name, err)
	}
	coll, err := backend.GetCollection(ctx, name)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNamespaceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", vectorstore.ErrNamespaceNotFound, name, err)
	}
	return coll, nil
}

// GetOrNil returns the collection, or nil if it cannot be found.
func (m *Manager) GetOrNil(ctx context.Context, name string) vectorstore.Collection {
	coll, err := m.Get(ctx, name)
	if err != nil {
		m.logger.Debug(logging.WithNamespace(ctx, name), "namespace lookup failed", zap.Error(err))
		return nil
	}
	return coll
}

// Count returns the number of vectors in a namespace; 0 if it does not exist.
func (m *Manager) Count(ctx context.Context, name string) (int, error) {
	ctx, span := tracer.Start(ctx, "Manager.Count")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	exists, err := m.Exists(ctx, name)
	if err != nil || !exists {
		return 0, err
	}
	coll, err := m.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := coll.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting vectors in %s: %w", name, err)
	}
	if n < 0 {
		n = 0
	}
	span.SetAttributes(attribute.Int("vector_count", n))
	return n, nil
}

// CreateOrUpdate writes records into a namespace.
//
// An existing namespace is upserted (idempotent by record id); a missing one
// is created and then filled.
func (m *Manager) CreateOrUpdate(ctx context.Context, records []vectorstore.Record, name string) error {
	ctx, span := tracer.Start(ctx, "Manager.CreateOrUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name), attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return nil
	}

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		coll, err := m.Get(ctx, name)
		if err != nil {
			return err
		}
		if err := coll.Upsert(ctx, records); err != nil {
			return fmt.Errorf("upserting into %s: %w", name, err)
		}
		return nil
	}

	backend, err := m.conn.Backend(ctx)
	if err != nil {
		return err
	}
	coll, err := backend.CreateCollection(ctx, name, len(records[0].Values))
	if err != nil {
		return fmt.Errorf("creating namespace %s: %w", name, err)
	}
	if err := coll.Add(ctx, records); err != nil {
		return fmt.Errorf("adding to %s: %w", name, err)
	}
	m.logger.Info(logging.WithNamespace(ctx, name), "namespace created", zap.Int("vectors", len(records)))
	return nil
}

// DeleteAllVectors removes every vector from a namespace but keeps the namespace.
func (m *Manager) DeleteAllVectors(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Manager.DeleteAllVectors")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	coll, err := m.Get(ctx, name)
	if err != nil {
		return err
	}
	return coll.Clear(ctx)
}

// DeleteNamespace drops a namespace and all of its vectors.
// Returns ErrNamespaceNotFound if it does not exist.
func (m *Manager) DeleteNamespace(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Manager.DeleteNamespace")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", name))

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrNamespaceNotFound, name)
	}

	backend, err := m.conn.Backend(ctx)
	if err != nil {
		return err
	}
	if err := backend.DeleteCollection(ctx, name); err != nil {
		return err
	}
	m.logger.Info(logging.WithNamespace(ctx, name), "namespace deleted")
	return nil
}

// Stats returns the vector count for an existing namespace.
func (m *Manager) Stats(ctx context.Context, name string) (*Stats, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no namespace value provided", vectorstore.ErrInvalidArgument)
	}
	exists, err := m.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrNamespaceNotFound, name)
	}
	n, err := m.Count(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Stats{Name: name, VectorCount: n}, nil
}

// TotalVectors sums the vector counts across all namespaces.
func (m *Manager) TotalVectors(ctx context.Context) (int, error) {
	backend, err := m.conn.Backend(ctx)
	if err != nil {
		return 0, err
	}
	names, err := backend.ListCollections(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, name := range names {
		coll, err := backend.GetCollection(ctx, name)
		if err != nil {
			return 0, err
		}
		n, err := coll.Count(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
