package audit

import "errors"

var ErrNotFound = errors.New("audit: record not found")
