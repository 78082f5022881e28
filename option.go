package treestate

import "time"

// PerformanceCallback is invoked when an operation that may trigger a load
// returns, naming the operation and how long the call itself took. The
// asynchronous load the call starts is not included in that time.
type PerformanceCallback func(operation string, elapsed time.Duration)

// Option configures optional, rarely-changed behaviour of a [TreeState].
// The mandatory provider factory is a [Config] field rather than an
// Option since every tree needs exactly one.
type Option func(*options)

// WithSelectionMode sets the initial selection mode (default
// [SelectionExtended]).
func WithSelectionMode(mode SelectionMode) Option {
	return func(o *options) {
		o.selectionMode = mode
	}
}

// WithPerformanceCallback registers a hook invoked when ReloadTree,
// ReloadSubTree, and ExpandNode return, reporting how long the
// operation's model mutation and the launch of any load took. The time
// the background load needs to finish is not measured.
func WithPerformanceCallback(fn PerformanceCallback) Option {
	return func(o *options) {
		o.onPerformanceMeasured = fn
	}
}

type options struct {
	selectionMode         SelectionMode
	onPerformanceMeasured PerformanceCallback
}

func newOptions(opts []Option) *options {
	o := &options{selectionMode: SelectionExtended}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) measure(operation string, start time.Time) {
	if o.onPerformanceMeasured != nil {
		o.onPerformanceMeasured(operation, time.Since(start))
	}
}
