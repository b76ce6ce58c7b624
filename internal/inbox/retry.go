package inbox

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// defaultMaxTries bounds the read/create cycles spent converging on a row created concurrently.
const defaultMaxTries = 4

func conflictBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	return b
}
