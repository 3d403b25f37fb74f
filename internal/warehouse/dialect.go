package warehouse

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the few SQL differences between the production warehouse
// (Postgres) and the sqlite backend used in tests: placeholder syntax and
// the serial surrogate-key column type. The staging-then-merge protocol
// itself is identical on both.
type Dialect struct {
	name   string
	serial string
}

var (
	Postgres = Dialect{name: "postgres", serial: "SERIAL"}
	SQLite   = Dialect{name: "sqlite3", serial: "INTEGER"}
)

// ForDriver maps a database/sql driver name to its dialect.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("ForDriver: unsupported driver %q", driver)
}

// Name returns the driver name the dialect belongs to.
func (d Dialect) Name() string { return d.name }

func (d Dialect) placeholder(i int) string {
	if d.name == "postgres" {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// valuesClause builds "(...),(...)" placeholder tuples for a multi-row
// insert of rows×cols values.
func (d Dialect) valuesClause(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
