package rag

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// Operation is a namespace-level admin operation.
type Operation int

const (
	OpNamespaceStats Operation = iota + 1
	OpDeleteNamespace
)

func (o Operation) String() string {
	switch o {
	case OpNamespaceStats:
		return "namespace-stats"
	case OpDeleteNamespace:
		return "delete-namespace"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation maps an operation name to its Operation.
func ParseOperation(name string) (Operation, error) {
	switch name {
	case "namespace-stats":
		return OpNamespaceStats, nil
	case "delete-namespace":
		return OpDeleteNamespace, nil
	default:
		return 0, fmt.Errorf("%w: unknown operation %q", vectorstore.ErrInvalidArgument, name)
	}
}

// MessageResult is the reply of operations that only report what they did.
type MessageResult struct {
	Message string `json:"message"`
}

// Exec runs an admin operation against a namespace. Both operations fail
// with ErrNamespaceNotFound when the namespace does not exist.
func (s *Service) Exec(ctx context.Context, op Operation, ns string) (any, error) {
	if ns == "" {
		return nil, fmt.Errorf("%w: namespace required", vectorstore.ErrInvalidArgument)
	}

	switch op {
	case OpNamespaceStats:
		return s.namespaces.Stats(ctx, ns)

	case OpDeleteNamespace:
		stats, err := s.namespaces.Stats(ctx, ns)
		if err != nil {
			return nil, err
		}
		if err := s.namespaces.DeleteNamespace(ctx, ns); err != nil {
			return nil, err
		}
		return &MessageResult{
			Message: fmt.Sprintf("Namespace %s was deleted along with %d vectors.", ns, stats.VectorCount),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported operation %s", vectorstore.ErrInvalidArgument, op)
	}
}
