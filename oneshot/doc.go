/*
Package oneshot provides a single-use channel that hands exactly one value
from a producer goroutine to a consumer that polls without blocking.

New returns linked Sender and Receiver endpoints. The Sender delivers at most
one value; if the Receiver was dropped first the value is discarded. The
Receiver polls with TryRecv, which reports ErrEmpty until a value arrives and
ErrClosed when the Sender was dropped without sending. Ready exposes a
channel that closes on either outcome for consumers that prefer to wait.

	tx, rx := oneshot.New[int]()
	go func() { tx.Send(42) }()
	for {
		v, err := rx.TryRecv()
		if errors.Is(err, oneshot.ErrEmpty) {
			continue // yield to other work
		}
		// use v or handle ErrClosed
	}

Polling again after a value was taken is a protocol violation and panics with
ErrExhausted.
*/
package oneshot
