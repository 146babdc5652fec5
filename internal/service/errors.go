package service

import (
	"errors"

	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// storeError translates repository sentinels into the error taxonomy.
// Already classified errors pass through unchanged.
func storeError(err error, resource string, details map[string]any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", details)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" changed concurrently", details)
	}
	return err
}
