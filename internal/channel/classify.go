package channel

import "strings"

type ErrorKind string

const (
	KindInvalidRecipient ErrorKind = "invalid_recipient"
	KindNetwork          ErrorKind = "network_error"
	KindCarrier          ErrorKind = "carrier_error"
	KindThrottled        ErrorKind = "throttled"
	KindBlocked          ErrorKind = "blocked"
	KindUnknown          ErrorKind = "unknown"
)

// Retryable reports whether another attempt could plausibly succeed.
// Unknown failures are retried; the retry budget bounds the cost.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindThrottled, KindUnknown:
		return true
	default:
		return false
	}
}

// Carrier error codes as reported in status callbacks.
var codeKinds = map[string]ErrorKind{
	"21201": KindInvalidRecipient,
	"21211": KindInvalidRecipient,
	"21400": KindInvalidRecipient,
	"20003": KindNetwork,
	"30001": KindNetwork,
	"30002": KindNetwork,
	"30003": KindNetwork,
	"21614": KindCarrier,
	"21615": KindCarrier,
	"21617": KindCarrier,
	"21619": KindCarrier,
	"30004": KindThrottled,
	"30005": KindThrottled,
	"21610": KindBlocked,
	"21612": KindBlocked,
	"21613": KindBlocked,
}

var phraseKinds = []struct {
	phrase string
	kind   ErrorKind
}{
	{"opted out", KindBlocked},
	{"opt-out", KindBlocked},
	{"unsubscribed", KindBlocked},
	{"blocked", KindBlocked},
	{"invalid number", KindInvalidRecipient},
	{"invalid phone", KindInvalidRecipient},
	{"invalid recipient", KindInvalidRecipient},
	{"not a valid", KindInvalidRecipient},
	{"rate limit", KindThrottled},
	{"throttl", KindThrottled},
	{"timeout", KindNetwork},
	{"timed out", KindNetwork},
	{"connection", KindNetwork},
}

// Classify maps a carrier error code or free-text reason to a kind. The
// reason may embed the code, e.g. "21610: unsubscribed recipient".
func Classify(reason string) ErrorKind {
	r := strings.ToLower(strings.TrimSpace(reason))
	if r == "" {
		return KindUnknown
	}
	for _, field := range strings.FieldsFunc(r, func(c rune) bool { return c < '0' || c > '9' }) {
		if kind, ok := codeKinds[field]; ok {
			return kind
		}
	}
	for _, p := range phraseKinds {
		if strings.Contains(r, p.phrase) {
			return p.kind
		}
	}
	return KindUnknown
}

// IsTerminal reports whether a failure reason must never be retried.
func IsTerminal(reason string) bool {
	return !Classify(reason).Retryable()
}
