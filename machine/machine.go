package machine

import (
	"fmt"

	"github.com/machina-io/machina/catalog"
)

// Default option values. Both limits are deliberately documented here rather
// than buried at call sites: features with long wizard cascades should raise
// MaxTransitions explicitly instead of relying on the default.
const (
	// DefaultMaxTransitions caps the reducer cascade per dispatch.
	DefaultMaxTransitions = 50

	// DefaultLoopWarningThreshold is the fraction of MaxTransitions at
	// which a non-fatal warning is reported.
	DefaultLoopWarningThreshold = 0.8
)

// Options holds the runtime knobs for a Machine.
type Options struct {
	// ValidateEvents gates dispatch on the catalog's allowed-events lists.
	ValidateEvents bool

	// MaxTransitions is the hard cascade cap per dispatch.
	MaxTransitions int

	// LoopWarningThreshold is the fraction of MaxTransitions at which a
	// warning is appended to the dispatch result.
	LoopWarningThreshold float64

	// AutoPersist makes the engine save state unconditionally at the end
	// of every cascade. When false, persistence happens only through a
	// PersistNow effect interpreted by the effect runner.
	AutoPersist bool
}

// Option configures a Machine at construction time.
type Option func(*Options)

// WithValidateEvents toggles catalog event validation. Default: true.
func WithValidateEvents(v bool) Option {
	return func(o *Options) { o.ValidateEvents = v }
}

// WithMaxTransitions sets the cascade cap. Default: DefaultMaxTransitions.
func WithMaxTransitions(n int) Option {
	return func(o *Options) { o.MaxTransitions = n }
}

// WithLoopWarningThreshold sets the warning fraction.
// Default: DefaultLoopWarningThreshold.
func WithLoopWarningThreshold(f float64) Option {
	return func(o *Options) { o.LoopWarningThreshold = f }
}

// WithAutoPersist toggles unconditional persistence at cascade end.
// Default: true.
func WithAutoPersist(v bool) Option {
	return func(o *Options) { o.AutoPersist = v }
}

// Machine is the immutable binding of a Definition, a Catalog, and Options.
//
// A Machine holds no per-instance state and is safe to share across all
// instances and concurrent engines.
type Machine[S any, E Event, C any] struct {
	def  Definition[S, E, C]
	cat  *catalog.Catalog
	opts Options
}

// New binds a definition to its catalog.
//
// The definition is validated for required funcs. The catalog may not be nil:
// even with event validation disabled it supplies the version stamped into
// persisted meta.
func New[S any, E Event, C any](def Definition[S, E, C], cat *catalog.Catalog, opts ...Option) (*Machine[S, E, C], error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("machine %s: catalog is required", def.Name)
	}

	o := Options{
		ValidateEvents:       true,
		MaxTransitions:       DefaultMaxTransitions,
		LoopWarningThreshold: DefaultLoopWarningThreshold,
		AutoPersist:          true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxTransitions <= 0 {
		return nil, fmt.Errorf("machine %s: MaxTransitions must be positive, got %d", def.Name, o.MaxTransitions)
	}
	if o.LoopWarningThreshold <= 0 || o.LoopWarningThreshold > 1 {
		return nil, fmt.Errorf("machine %s: LoopWarningThreshold must be in (0, 1], got %v", def.Name, o.LoopWarningThreshold)
	}

	return &Machine[S, E, C]{def: def, cat: cat, opts: o}, nil
}

// Definition returns the bound contract funcs.
func (m *Machine[S, E, C]) Definition() Definition[S, E, C] {
	return m.def
}

// Catalog returns the bound state catalog.
func (m *Machine[S, E, C]) Catalog() *catalog.Catalog {
	return m.cat
}

// Options returns the resolved runtime options.
func (m *Machine[S, E, C]) Options() Options {
	return m.opts
}

// Name returns the definition name.
func (m *Machine[S, E, C]) Name() string {
	return m.def.Name
}

// Version returns the definition version.
func (m *Machine[S, E, C]) Version() string {
	return m.def.Version
}
