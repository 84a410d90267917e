package connect

import "fmt"

// FlowState is one step of the authorization handshake.
type FlowState string

const (
	StateProviderSelected    FlowState = "provider_selected"
	StateCountrySelected     FlowState = "country_selected"
	StateInstitutionSelected FlowState = "institution_selected"
	StateAccountSelected     FlowState = "account_selected"
	StateInitiating          FlowState = "initiating"
	StateAwaitingRedirect    FlowState = "awaiting_redirect_authorization"
	StateLinkPending         FlowState = "link_pending"
	StateActive              FlowState = "active"
	StateError               FlowState = "error"
)

// legalTransitions is the full transition table. Keeping it as data makes
// the flow's legality checkable independent of any specific provider.
var legalTransitions = map[FlowState][]FlowState{
	StateProviderSelected:    {StateCountrySelected},
	StateCountrySelected:     {StateInstitutionSelected},
	StateInstitutionSelected: {StateAccountSelected},
	StateAccountSelected:     {StateInitiating},
	StateInitiating:          {StateAwaitingRedirect, StateLinkPending, StateAccountSelected},
	StateAwaitingRedirect:    {StateActive, StateError},
	StateLinkPending:         {StateActive, StateError},
	StateActive:              {},
	StateError:               {},
}

// IllegalTransitionError reports an attempted transition the flow does
// not permit.
type IllegalTransitionError struct {
	From FlowState
	To   FlowState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal flow transition %s → %s", e.From, e.To)
}

// Transition validates and returns the next state.
func Transition(from, to FlowState) (FlowState, error) {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return to, nil
		}
	}
	return from, &IllegalTransitionError{From: from, To: to}
}
