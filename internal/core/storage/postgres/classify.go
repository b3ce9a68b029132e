package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/lib/pq"
)

// SQLSTATE codes mapped onto load failure kinds.
const (
	codeUniqueViolation = "23505"
	codeUndefinedColumn = "42703"
	codeUndefinedTable  = "42P01"
	classConnection     = "08"
)

// classify maps driver errors onto the load failure taxonomy. Errors it does
// not recognize are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var classified *etlerr.Error
	if errors.As(err, &classified) {
		return err
	}
	// Deadline errors satisfy net.Error; they are not store failures.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation:
			e := etlerr.New(etlerr.KindConstraint, err)
			e.Entity = pqErr.Table
			e.Message = pqErr.Constraint
			return e
		case pqErr.Code == codeUndefinedColumn, pqErr.Code == codeUndefinedTable:
			e := etlerr.New(etlerr.KindSchemaDrift, err)
			e.Entity = "warehouse"
			return e
		case pqErr.Code.Class() == classConnection:
			return etlerr.Connection("warehouse", err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return etlerr.Connection("warehouse", err)
	}
	return err
}
