package workflow

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
	"github.com/rs/zerolog"
)

const (
	eventSelect  statekit.EventType = "SELECT"
	eventClear   statekit.EventType = "CLEAR"
	eventSubmit  statekit.EventType = "SUBMIT"
	eventSucceed statekit.EventType = "SUCCEED"
	eventFail    statekit.EventType = "FAIL"
	eventReset   statekit.EventType = "RESET"
)

const (
	stateIdle       = statekit.StateID(StateIdle)
	stateReady      = statekit.StateID(StateReady)
	stateProcessing = statekit.StateID(StateProcessing)
	stateSucceeded  = statekit.StateID(StateSucceeded)
	stateFailed     = statekit.StateID(StateFailed)
)

// transitions lists every legal edge. Processing only exits to a terminal
// state, which keeps at most one request outstanding.
var transitions = map[State]map[State]statekit.EventType{
	StateIdle:       {StateReady: eventSelect},
	StateReady:      {StateIdle: eventClear, StateProcessing: eventSubmit},
	StateProcessing: {StateSucceeded: eventSucceed, StateFailed: eventFail},
	StateSucceeded:  {StateIdle: eventReset},
	StateFailed:     {StateIdle: eventReset},
}

type machineContext struct {
	logger  zerolog.Logger
	current State
}

func newWorkflowMachine() (*statekit.MachineConfig[*machineContext], error) {
	return statekit.NewMachine[*machineContext]("workflow").
		WithInitial(stateIdle).
		WithContext(&machineContext{current: StateIdle}).
		WithAction("recordTransition", recordTransition).
		State(stateIdle).
		On(eventSelect).Target(stateReady).Do("recordTransition").
		Done().
		State(stateReady).
		On(eventClear).Target(stateIdle).Do("recordTransition").
		On(eventSubmit).Target(stateProcessing).Do("recordTransition").
		Done().
		State(stateProcessing).
		On(eventSucceed).Target(stateSucceeded).Do("recordTransition").
		On(eventFail).Target(stateFailed).Do("recordTransition").
		Done().
		State(stateSucceeded).
		On(eventReset).Target(stateIdle).Do("recordTransition").
		Done().
		State(stateFailed).
		On(eventReset).Target(stateIdle).Do("recordTransition").
		Done().
		Build()
}

func recordTransition(ctx **machineContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	to, _ := event.Payload.(State)
	c.logger.Debug().Str("from", string(c.current)).Str("to", string(to)).Str("event", string(event.Type)).Msg("workflow transition")
	c.current = to
}

// machine drives the statechart. Callers serialize access.
type machine struct {
	interp *statekit.Interpreter[*machineContext]
}

func newMachine(logger zerolog.Logger) (*machine, error) {
	cfg, err := newWorkflowMachine()
	if err != nil {
		return nil, fmt.Errorf("build workflow machine: %w", err)
	}
	interp := statekit.NewInterpreter(cfg)
	interp.UpdateContext(func(c **machineContext) {
		*c = &machineContext{logger: logger, current: StateIdle}
	})
	interp.Start()
	return &machine{interp: interp}, nil
}

func (m *machine) state() State {
	return State(m.interp.State().Value)
}

// move fires the event for the edge current -> to.
func (m *machine) move(to State) error {
	from := m.state()
	event, ok := transitions[from][to]
	if !ok {
		return fmt.Errorf("transition from %s to %s not allowed", from, to)
	}
	m.interp.Send(statekit.Event{Type: event, Payload: to})
	if got := m.state(); got != to {
		return fmt.Errorf("transition from %s to %s landed in %s", from, to, got)
	}
	return nil
}
