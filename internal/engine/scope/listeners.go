package scope

type NameKind uint8

const (
	NameVariable NameKind = iota
	NameMethod
	NameImport
)

func (k NameKind) String() string {
	switch k {
	case NameVariable:
		return "variable"
	case NameMethod:
		return "method"
	default:
		return "import"
	}
}

// NameEvent describes a name added to a scope.
type NameEvent struct {
	Kind  NameKind
	Name  string
	Scope string
}

// NameListener observes names added to a scope, e.g. for completion. Scopes
// hold listeners weakly: drop every reference to stop receiving events.
type NameListener struct {
	fn func(NameEvent)
}

func NewNameListener(fn func(NameEvent)) *NameListener {
	return &NameListener{fn: fn}
}

// AddNameListener registers l on this scope.
func (s *Scope) AddNameListener(l *NameListener) {
	s.listeners.Add(l)
}

// RemoveNameListener unregisters l.
func (s *Scope) RemoveNameListener(l *NameListener) {
	s.listeners.Remove(l)
}

func (s *Scope) notify(ev NameEvent) {
	for _, l := range s.listeners.Live() {
		if l.fn != nil {
			l.fn(ev)
		}
	}
}
