package eventprocessor

import (
	"fmt"
	"log"

	"tracecap/internal/capture"
	"tracecap/internal/wire"
)

// apiProcessor reduces manual-instrumentation events to timers. Synchronous
// scopes nest per thread, so each tid carries its own stack of open starts;
// async scopes pair across threads by id. State lives for one capture.
type apiProcessor struct {
	strings     *stringTable
	scopeStacks map[int32][]*wire.ApiEvent
	asyncScopes map[uint64]*wire.ApiEvent
}

func newApiProcessor(strings *stringTable) *apiProcessor {
	return &apiProcessor{
		strings:     strings,
		scopeStacks: make(map[int32][]*wire.ApiEvent),
		asyncScopes: make(map[uint64]*wire.ApiEvent),
	}
}

func (a *apiProcessor) process(event *wire.ApiEvent) ([]capture.TimerInfo, error) {
	switch event.Kind {
	case wire.ApiScopeStart:
		a.scopeStacks[event.TID] = append(a.scopeStacks[event.TID], event)
		return nil, nil
	case wire.ApiScopeStop:
		return a.processScopeStop(event), nil
	case wire.ApiScopeStartAsync:
		a.asyncScopes[event.ID] = event
		return nil, nil
	case wire.ApiScopeStopAsync:
		return a.processAsyncScopeStop(event), nil
	case wire.ApiTrackInt32, wire.ApiTrackUint32, wire.ApiTrackInt64,
		wire.ApiTrackUint64, wire.ApiTrackFloat, wire.ApiTrackDouble:
		return a.processTrackedValue(event)
	}
	return nil, fmt.Errorf("%w: api event kind %d", wire.ErrUnknownEnumValue, event.Kind)
}

func (a *apiProcessor) processScopeStop(stop *wire.ApiEvent) []capture.TimerInfo {
	stack := a.scopeStacks[stop.TID]
	if len(stack) == 0 {
		// The start happened before the capture began; there is no interval
		// to reconstruct.
		log.Printf("api: scope stop on tid %d without open scope, discarding", stop.TID)
		return nil
	}
	start := stack[len(stack)-1]
	a.scopeStacks[stop.TID] = stack[:len(stack)-1]

	return []capture.TimerInfo{{
		ProcessID: start.PID,
		ThreadID:  start.TID,
		Start:     start.TimestampNs,
		End:       stop.TimestampNs,
		Depth:     uint8(len(stack) - 1),
		Processor: capture.InvalidProcessor,
		Type:      capture.TimerApiScope,
		LabelKey:  a.strings.InternLabel(start.Name),
	}}
}

func (a *apiProcessor) processAsyncScopeStop(stop *wire.ApiEvent) []capture.TimerInfo {
	start, ok := a.asyncScopes[stop.ID]
	if !ok {
		log.Printf("api: async scope stop for unknown id %d, discarding", stop.ID)
		return nil
	}
	delete(a.asyncScopes, stop.ID)

	return []capture.TimerInfo{{
		ProcessID: start.PID,
		ThreadID:  start.TID,
		Start:     start.TimestampNs,
		End:       stop.TimestampNs,
		Processor: capture.InvalidProcessor,
		Type:      capture.TimerApiScopeAsync,
		LabelKey:  a.strings.InternLabel(start.Name),
		AsyncID:   stop.ID,
	}}
}

func (a *apiProcessor) processTrackedValue(event *wire.ApiEvent) ([]capture.TimerInfo, error) {
	value, err := wire.DecodeTrackedValue(event.Kind, event.Payload)
	if err != nil {
		return nil, err
	}
	return []capture.TimerInfo{{
		ProcessID: event.PID,
		ThreadID:  event.TID,
		Start:     event.TimestampNs,
		End:       event.TimestampNs,
		Processor: capture.InvalidProcessor,
		Type:      capture.TimerApiValue,
		LabelKey:  a.strings.InternLabel(event.Name),
		Value:     value,
	}}, nil
}
