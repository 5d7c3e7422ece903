package catidx

// State is a stage of the build lifecycle.
type State int

const (
	Idle State = iota
	Scanning
	StagingComplete
	Loading
	Verifying
	Published
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case StagingComplete:
		return "staging complete"
	case Loading:
		return "loading"
	case Verifying:
		return "verifying"
	case Published:
		return "published"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Published || s == Failed
}
