package fiber

// Flags is the set of orthogonal runtime capabilities a fiber runs
// with. It is an immutable value combined by set union and difference.
type Flags uint32

const (
	// Interruption enables honoring interrupt requests at checkpoints.
	Interruption Flags = 1 << iota
	// CooperativeYielding makes a running fiber voluntarily yield back
	// to the scheduler after the fairness budget is spent.
	CooperativeYielding
)

// DefaultFlags is what a Runtime uses unless configured otherwise.
const DefaultFlags = Interruption | CooperativeYielding

// Has reports whether every flag in set is enabled.
func (f Flags) Has(set Flags) bool { return f&set == set }

// Enable returns the union of f and set.
func (f Flags) Enable(set Flags) Flags { return f | set }

// Disable returns f with every flag in set removed.
func (f Flags) Disable(set Flags) Flags { return f &^ set }
