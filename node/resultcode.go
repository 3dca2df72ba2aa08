package node

import "fmt"

// ResultCode is every facade operation's return code, per spec.md §6/§7:
// 0 is OK, 1-999 are fatal (the node must be discarded), 1000+ are
// non-fatal (the call failed locally without disturbing global state).
type ResultCode int

const (
	ResultOK ResultCode = 0

	// Fatal: 1-999.
	ResultErrorOutOfMemory ResultCode = 1
	ResultErrorDataStore   ResultCode = 2
	ResultErrorInternal    ResultCode = 3

	// Non-fatal: 1000+.
	ResultErrorNetworkNotFound ResultCode = 1000
	ResultErrorUnsupported     ResultCode = 1001
	ResultErrorBadParameter    ResultCode = 1002
)

// Fatal reports whether code is in the 1-999 fatal range.
func (c ResultCode) Fatal() bool { return c >= 1 && c < 1000 }

func (c ResultCode) Error() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultErrorOutOfMemory:
		return "out of memory"
	case ResultErrorDataStore:
		return "data store failure"
	case ResultErrorInternal:
		return "internal invariant violation"
	case ResultErrorNetworkNotFound:
		return "network not found"
	case ResultErrorUnsupported:
		return "unsupported operation"
	case ResultErrorBadParameter:
		return "bad parameter"
	default:
		return fmt.Sprintf("result code %d", int(c))
	}
}
