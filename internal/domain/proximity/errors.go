package proximity

import "errors"

// ErrMalformedReport wraps every validation failure of an inbound report.
var ErrMalformedReport = errors.New("malformed position report")
