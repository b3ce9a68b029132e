package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/go-sql-driver/mysql"
)

// Server error numbers mapped onto load failure kinds.
const (
	errDupEntry     = 1062
	errBadFieldName = 1054
	errNoSuchTable  = 1146
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

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDupEntry:
			e := etlerr.New(etlerr.KindConstraint, err)
			e.Entity = "source"
			return e
		case errBadFieldName, errNoSuchTable:
			e := etlerr.New(etlerr.KindSchemaDrift, err)
			e.Entity = "source"
			return e
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return etlerr.Connection("source", err)
	}
	return err
}
