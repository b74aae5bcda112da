package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("BLOODBRIDGE_TEST_MODE", "1")
		// Tests never reach the real identity provider.
		_ = os.Setenv("IDENTITY_BASE_URL", "http://127.0.0.1:0/v1")
		_ = os.Setenv("IDENTITY_TOKEN_URL", "http://127.0.0.1:0/token")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
