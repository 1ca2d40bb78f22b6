package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/jwalitptl/carebook/pkg/errors"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// mapError translates driver errors into AppErrors. AppErrors pass through.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, err)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return errors.Conflict(fmt.Sprintf("%s already exists", resource), err)
		case pqForeignKeyViolation:
			return errors.NotFound(resource, err)
		case pqCheckViolation:
			return errors.Internal(fmt.Errorf("%s violates constraint %s: %w", resource, pqErr.Constraint, err))
		}
		if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57" {
			return errors.Storage(err)
		}
		return fmt.Errorf("%s query failed: %w", resource, err)
	}

	var netErr net.Error
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, context.DeadlineExceeded) || stderrors.As(err, &netErr) {
		return errors.Storage(err)
	}

	return fmt.Errorf("%s query failed: %w", resource, err)
}
