// Package service holds the catalog's business rules: authorization,
// pagination, uploads and the side effects (cache, activity feed, metrics)
// that accompany each data access call.
package service

import (
	"context"
	"io"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

// Actor is the caller of a service operation. The zero value is anonymous.
type Actor struct {
	ID      string
	IsAdmin bool
}

// Anonymous reports whether the caller is not logged in.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// CanManage reports whether the caller may modify a resource owned by ownerID.
func (a Actor) CanManage(ownerID string) bool {
	return a.IsAdmin || (a.ID != "" && a.ID == ownerID)
}

func requireUser(a Actor) error {
	if a.Anonymous() {
		return models.NewUnauthorizedError("Authentication required")
	}
	return nil
}

func requireAdmin(a Actor) error {
	if err := requireUser(a); err != nil {
		return err
	}
	if !a.IsAdmin {
		return models.NewForbiddenError("Admin access required")
	}
	return nil
}

// FileStorage is the part of storage.FileStore the services use.
type FileStorage interface {
	Save(originalName string, r io.Reader, limit int64) (string, int64, error)
	WriteFile(name string, data []byte) error
	Open(name string) (afero.File, error)
	Remove(ctx context.Context, names ...string)
}

// startSpan opens a service span and returns a finisher that records err.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := observability.StartSpan(ctx, "service."+name, attrs...)
	return ctx, func(errp *error) {
		defer span.End()
		if errp == nil || *errp == nil {
			return
		}
		// Client errors are expected outcomes, not span failures.
		code := models.ErrorCode(*errp)
		if code != "" {
			span.SetAttributes(attribute.String("error.code", code))
		}
		if code == "" || code == models.CodeInternal {
			observability.FailSpan(span, *errp)
		}
	}
}
