package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// ErrTransactionConflict indicates concurrent writers touched the same
// record. Callers may retry.
var ErrTransactionConflict = errors.New("transaction conflict")

// ErrSchemaViolation indicates a record failed a field assertion.
var ErrSchemaViolation = errors.New("schema violation")

// wrapQueryError maps known SurrealDB query errors onto sentinels and
// returns anything else unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "Transaction conflict"):
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		case strings.Contains(msg, "assertion"), strings.Contains(msg, "expected a"):
			return fmt.Errorf("%w: %s", ErrSchemaViolation, msg)
		}
	}
	return err
}
