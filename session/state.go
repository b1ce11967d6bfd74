package session

import "github.com/C0nstantin/mailrelay/transport/ldap"

// State is one of AwaitingSelection or AwaitingMessage. A user with no
// entry in the Store has no session.
type State interface {
	Candidates() []ldap.Candidate
	isState()
}

// AwaitingSelection holds the result of a successful lookup.
type AwaitingSelection struct {
	candidates []ldap.Candidate
}

func NewAwaitingSelection(candidates []ldap.Candidate) AwaitingSelection {
	return AwaitingSelection{candidates: append([]ldap.Candidate(nil), candidates...)}
}

func (s AwaitingSelection) Candidates() []ldap.Candidate {
	return append([]ldap.Candidate(nil), s.candidates...)
}

// Choose returns the AwaitingMessage state for candidate i.
func (s AwaitingSelection) Choose(i int) (AwaitingMessage, error) {
	return choose(s.candidates, i)
}

func (AwaitingSelection) isState() {}

// AwaitingMessage is reached once a sender has been picked from the candidates.
type AwaitingMessage struct {
	candidates []ldap.Candidate
	sender     ldap.Candidate
}

func (s AwaitingMessage) Candidates() []ldap.Candidate {
	return append([]ldap.Candidate(nil), s.candidates...)
}

func (s AwaitingMessage) Sender() ldap.Candidate { return s.sender }

// Choose replaces the chosen sender with candidate i of the same lookup.
func (s AwaitingMessage) Choose(i int) (AwaitingMessage, error) {
	return choose(s.candidates, i)
}

func (AwaitingMessage) isState() {}

func choose(candidates []ldap.Candidate, i int) (AwaitingMessage, error) {
	if i < 0 || i >= len(candidates) {
		return AwaitingMessage{}, ErrInvalidSelection
	}
	return AwaitingMessage{candidates: candidates, sender: candidates[i]}, nil
}
