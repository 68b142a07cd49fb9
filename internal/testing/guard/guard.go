// Package guard forces test mode for packages whose tests must never touch
// runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEDGERLINE_TEST_MODE") == "" {
			_ = os.Setenv("LEDGERLINE_TEST_MODE", "1")
		}
	})
}
