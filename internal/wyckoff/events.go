package wyckoff

import "time"

// EventType identifies a canonical Wyckoff structural event.
type EventType string

const (
	SellingClimax  EventType = "SC"
	AutomaticRally EventType = "AR"
	RallyTop       EventType = "AR_TOP"
	Spring         EventType = "SPRING"
	Upthrust       EventType = "UT"
	SignOfStrength EventType = "SOS"
	BuyingClimax   EventType = "BC"
	SignOfWeakness EventType = "SOW"
)

// Regime is the current Wyckoff market-structure phase.
type Regime string

const (
	Accumulation Regime = "Accumulation"
	Markup       Regime = "Markup"
	Distribution Regime = "Distribution"
	Markdown     Regime = "Markdown"
	Unknown      Regime = "Unknown"
)

// Regime returns the fixed, non-configurable regime association of an event.
func (e EventType) Regime() Regime {
	switch e {
	case SellingClimax, AutomaticRally, RallyTop, Spring:
		return Accumulation
	case Upthrust, BuyingClimax:
		return Distribution
	case SignOfStrength:
		return Markup
	case SignOfWeakness:
		return Markdown
	default:
		return Unknown
	}
}

// Event is one detected structural event.
type Event struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Type          EventType `json:"type"`
	Confidence    float64   `json:"confidence"`
	PriceLevel    float64   `json:"price_level"`
	VolumeContext string    `json:"volume_context"`
}

// StateEvent is an event as recorded in regime state, tagged with the regime
// span it was emitted in.
type StateEvent struct {
	Event
	Regime Regime `json:"regime"`
}

// State is the only value carried across invocations for a symbol. It is
// treated as immutable: Detect returns a new State and never mutates the
// prior one. The range anchors give later bars the support/ceiling levels
// established by earlier events.
type State struct {
	Symbol        string       `json:"symbol"`
	CurrentRegime Regime       `json:"current_regime"`
	Events        []StateEvent `json:"event_history"`
	LastEventDate *time.Time   `json:"last_event_date"`
	SpanStart     *time.Time   `json:"span_start"`
	RangeLow      *float64     `json:"range_low"`
	RangeHigh     *float64     `json:"range_high"`
}

// NewState returns the initial state for a symbol.
func NewState(symbol string) State {
	return State{Symbol: symbol, CurrentRegime: Unknown, Events: []StateEvent{}}
}

func (s State) clone() State {
	out := s
	out.Events = make([]StateEvent, len(s.Events))
	copy(out.Events, s.Events)
	if s.LastEventDate != nil {
		d := *s.LastEventDate
		out.LastEventDate = &d
	}
	if s.SpanStart != nil {
		d := *s.SpanStart
		out.SpanStart = &d
	}
	if s.RangeLow != nil {
		v := *s.RangeLow
		out.RangeLow = &v
	}
	if s.RangeHigh != nil {
		v := *s.RangeHigh
		out.RangeHigh = &v
	}
	return out
}

// eventsAt returns the recorded events dated exactly at t.
func (s State) eventsAt(t time.Time) []StateEvent {
	var out []StateEvent
	for _, e := range s.Events {
		if e.Date.Equal(t) {
			out = append(out, e)
		}
	}
	return out
}

// typeInSpan reports whether an event type already occurred within the
// current continuous regime span.
func (s State) typeInSpan(t EventType) bool {
	for _, e := range s.Events {
		if e.Type != t {
			continue
		}
		if s.SpanStart == nil || !e.Date.Before(*s.SpanStart) {
			return true
		}
	}
	return false
}

// apply records an emitted event, updates the range anchors and applies the
// regime transition it triggers, if any.
func (s *State) apply(ev Event, bar barView) {
	next := s.CurrentRegime

	switch ev.Type {
	case SellingClimax:
		if s.CurrentRegime == Unknown || s.CurrentRegime == Markdown {
			next = Accumulation
		}
		low := bar.Low
		s.RangeLow = &low
	case AutomaticRally, RallyTop:
		high := bar.High
		s.RangeHigh = &high
	case Spring:
		// Anchors unchanged; the range held.
	case SignOfStrength:
		next = Markup
	case BuyingClimax:
		next = Distribution
		high := bar.High
		s.RangeHigh = &high
		support := bar.Support
		s.RangeLow = &support
	case Upthrust:
		// Ceiling held; anchors unchanged.
	case SignOfWeakness:
		next = Markdown
	}

	if next != s.CurrentRegime {
		s.CurrentRegime = next
		start := ev.Date
		s.SpanStart = &start
	}

	s.Events = append(s.Events, StateEvent{Event: ev, Regime: s.CurrentRegime})
	d := ev.Date
	s.LastEventDate = &d
}
