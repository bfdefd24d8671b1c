package registry

import "errors"

// ErrRoleConflict is returned when a known actor reports a different role.
var ErrRoleConflict = errors.New("actor role conflict")
