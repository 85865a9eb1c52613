package core

import "fmt"

// Status is the session lifecycle state
type Status int

const (
	StatusWaiting Status = iota
	StatusActive
	StatusCheckmate
	StatusStalemate
	StatusDraw
	StatusResigned
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusCheckmate:
		return "checkmate"
	case StatusStalemate:
		return "stalemate"
	case StatusDraw:
		return "draw"
	case StatusResigned:
		return "resigned"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further moves can be made
func (s Status) IsTerminal() bool {
	return s >= StatusCheckmate && s <= StatusAbandoned
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusWaiting; st <= StatusAbandoned; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// EndReason records why a terminal status was reached
type EndReason int

const (
	ReasonNone EndReason = iota
	ReasonCheckmate
	ReasonStalemate
	ReasonInsufficientMaterial
	ReasonAgreement
	ReasonResignation
	ReasonDisconnect
)

func (r EndReason) String() string {
	switch r {
	case ReasonCheckmate:
		return "checkmate"
	case ReasonStalemate:
		return "stalemate"
	case ReasonInsufficientMaterial:
		return "insufficient_material"
	case ReasonAgreement:
		return "agreement"
	case ReasonResignation:
		return "resignation"
	case ReasonDisconnect:
		return "disconnect"
	default:
		return ""
	}
}

func (r EndReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *EndReason) UnmarshalText(text []byte) error {
	for rs := ReasonNone; rs <= ReasonDisconnect; rs++ {
		if rs.String() == string(text) {
			*r = rs
			return nil
		}
	}
	return fmt.Errorf("unknown end reason %q", text)
}
