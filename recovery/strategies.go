package recovery

import "fmt"

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every defect and asks the caller to patch or drop the
// offending construct. OnDefect, when set, observes each defect as it happens.
type LenientStrategy struct {
	Errors   []error
	OnDefect func(err error, location Location)
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("[%s] %w", location, err))
	if s.OnDefect != nil {
		s.OnDefect(err, location)
	}
	if location.ObjectNum > 0 && location.Component == "loader" {
		return ActionSkip
	}
	return ActionFix
}
