package book

import "errors"

var (
	// ErrInvalidOrder rejects zero or negative quantity or price limit.
	ErrInvalidOrder = errors.New("book: invalid order")

	// ErrNotOwner rejects a cancel by anyone but the order's owner.
	ErrNotOwner = errors.New("book: not order owner")

	// ErrNotCancellable rejects a cancel of an order that is not Open. It
	// deliberately covers "already matched", "already cancelled" and
	// "unknown id" alike, so cancel failures never reveal match timing.
	ErrNotCancellable = errors.New("book: order not cancellable")

	// ErrNotCounterparty rejects a match-key read by anyone but the buyer
	// or seller of that match. Unknown match ids fail identically.
	ErrNotCounterparty = errors.New("book: not a counterparty")

	// ErrReentrantCall rejects a mutating call nested inside another one.
	ErrReentrantCall = errors.New("book: reentrant call")

	// ErrBookFull rejects a placement that would exceed the commodity's
	// maximum book depth, the capacity the cost envelope is sized for.
	ErrBookFull = errors.New("book: side at maximum depth")
)
