package mt

import "errors"

// ErrTaskFailed wraps the name of a task whose body reported failure.
var ErrTaskFailed = errors.New("mt: task failed")
