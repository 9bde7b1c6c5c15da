package host

// StepKind classifies the result of one poll.
type StepKind int

const (
	// Pending means the work is not finished; poll again later.
	Pending StepKind = iota
	// Return carries the final value.
	Return
	// Raise carries the final error.
	Raise
)

func (k StepKind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Return:
		return "return"
	case Raise:
		return "raise"
	}
	return "unknown"
}

// Step is the result of one poll of an Iterator.
type Step struct {
	Kind  StepKind
	Value Object
	Err   *Exception
}

// Iterator is the host iteration capability: Iter begins iteration and yields
// the iterator itself, Next performs one non-blocking poll.
type Iterator interface {
	Iter() Iterator
	Next() Step
}

// Awaitable is the host await capability. Await begins awaiting and returns
// the iterator the scheduler polls.
type Awaitable interface {
	Await() Iterator
}

// Waker is implemented by iterators that can signal readiness, letting the
// loop wait instead of sleeping blindly.
type Waker interface {
	Ready() <-chan struct{}
}
