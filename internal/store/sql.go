package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

// isConnErr reports driver failures that mean the database was unreachable
// rather than that the statement was wrong.
func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// wrapSQL attaches op to err and maps connection failures to ErrUnavailable.
// extra lets each adapter add its own driver-specific unavailable codes.
func wrapSQL(op string, err error, extra func(error) bool) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isConnErr(err) || (extra != nil && extra(err)) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// updateSet renders the SET clause for c. ph returns the placeholder for the
// n-th argument (1-based).
func updateSet(c Changes, ph func(n int) string) (string, []any) {
	var sets []string
	var args []any
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, col+" = "+ph(len(args)))
	}
	add("username", c.Username)
	add("secret_hash", c.SecretHash)
	add("email", c.Email)
	add("birthday", c.Birthday)
	return strings.Join(sets, ", "), args
}
