package inference

// OutcomeKind classifies one candidate attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransportFailure
	OutcomeProviderError
	OutcomeEmptyResponse
	OutcomeUnparseable
	OutcomeParseFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeProviderError:
		return "provider_error"
	case OutcomeEmptyResponse:
		return "empty_response"
	case OutcomeUnparseable:
		return "unparseable"
	case OutcomeParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one attempt. Value is set only on success,
// Err only otherwise.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

func success[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSuccess, Value: v}
}

func failure[T any](kind OutcomeKind, err error) Outcome[T] {
	return Outcome[T]{Kind: kind, Err: err}
}
