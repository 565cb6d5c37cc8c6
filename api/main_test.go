package api

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the api package, catching
// handlers or server shutdowns that leave goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest keepalive connections persist briefly across tests
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}
