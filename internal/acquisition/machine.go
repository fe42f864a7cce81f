package acquisition

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State is a step of one acquisition cycle.
type State string

const (
	StateDetect      State = "detect"
	StateAnalyze     State = "analyze"
	StateBudgetCheck State = "budget_check"
	StateApprove     State = "approve"
	StateAcquire     State = "acquire"
	StateRecordCost  State = "record_cost"
	StateRecordUsage State = "record_usage"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const (
	eventNext = "next"
	eventFail = "fail"
)

// cycleContext carries the run id into the machine.
type cycleContext struct {
	RunID string
}

// lifecycle drives one cycle through the fixed state graph. Only budget
// check, approval and acquisition may fail.
type lifecycle struct {
	interpreter *statekit.Interpreter[cycleContext]
	trace       []State
}

func newLifecycle(runID string) (*lifecycle, error) {
	builder := statekit.NewMachine[cycleContext]("acquisition").
		WithInitial(statekit.StateID(StateDetect)).
		WithContext(cycleContext{RunID: runID})

	builder.State(statekit.StateID(StateDetect)).
		On(eventNext).Target(statekit.StateID(StateAnalyze)).
		Done()

	builder.State(statekit.StateID(StateAnalyze)).
		On(eventNext).Target(statekit.StateID(StateBudgetCheck)).
		Done()

	builder.State(statekit.StateID(StateBudgetCheck)).
		On(eventNext).Target(statekit.StateID(StateApprove)).
		On(eventFail).Target(statekit.StateID(StateFailed)).
		Done()

	builder.State(statekit.StateID(StateApprove)).
		On(eventNext).Target(statekit.StateID(StateAcquire)).
		On(eventFail).Target(statekit.StateID(StateFailed)).
		Done()

	builder.State(statekit.StateID(StateAcquire)).
		On(eventNext).Target(statekit.StateID(StateRecordCost)).
		On(eventFail).Target(statekit.StateID(StateFailed)).
		Done()

	builder.State(statekit.StateID(StateRecordCost)).
		On(eventNext).Target(statekit.StateID(StateRecordUsage)).
		Done()

	builder.State(statekit.StateID(StateRecordUsage)).
		On(eventNext).Target(statekit.StateID(StateDone)).
		Done()

	builder.State(statekit.StateID(StateDone)).Done()
	builder.State(statekit.StateID(StateFailed)).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build acquisition machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &lifecycle{
		interpreter: interpreter,
		trace:       []State{StateDetect},
	}, nil
}

func (l *lifecycle) current() State {
	return State(l.interpreter.State().Value)
}

// send fires event and fails if the current state has no such transition.
func (l *lifecycle) send(event string) error {
	before := l.current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := l.current()
	if before == after {
		return fmt.Errorf("event %q is not allowed in state %q", event, before)
	}
	l.trace = append(l.trace, after)
	return nil
}

func (l *lifecycle) next() error { return l.send(eventNext) }
func (l *lifecycle) fail() error { return l.send(eventFail) }

func (l *lifecycle) history() []State {
	return append([]State(nil), l.trace...)
}
