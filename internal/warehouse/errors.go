package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

// IsTransient reports whether err looks like a connection-level failure
// worth retrying: bad connections, timeouts, network blips, or Postgres
// connection/resource error classes. Anything else fails closed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		// 08xxx connection exceptions, 53xxx insufficient resources,
		// 57P03 cannot_connect_now.
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || code == "57P03"
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "i/o timeout", "unexpected eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsConstraint reports whether err is an integrity-constraint violation
// (class 23 on Postgres). These are data defects; retrying cannot fix them.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "23")
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
