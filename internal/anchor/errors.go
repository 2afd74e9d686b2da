package anchor

import "errors"

// ErrUnavailable is returned by writers whose backend cannot be reached.
var ErrUnavailable = errors.New("chain writer unavailable")
