package domain

import "errors"

// ErrIntegrity marks data defects that retrying cannot fix: duplicate
// primary keys across partitions, foreign-key violations on load. Callers
// surface these immediately instead of retrying.
var ErrIntegrity = errors.New("integrity violation")
