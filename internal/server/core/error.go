package core

import "errors"

// Error codes
const (
	ErrCodeGameNotFound      = "GAME_NOT_FOUND"
	ErrCodeInvalidMove       = "INVALID_MOVE"
	ErrCodeNotYourTurn       = "NOT_YOUR_TURN"
	ErrCodeNotParticipant    = "NOT_PARTICIPANT"
	ErrCodeSessionFull       = "SESSION_FULL"
	ErrCodeNoDrawOffer       = "NO_DRAW_OFFER"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeGameOver          = "GAME_OVER"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
)

var (
	ErrMalformedMove   = errors.New("malformed move")
	ErrIllegalMove     = errors.New("illegal move")
	ErrSelfCheck       = &selfCheckError{}
	ErrNotYourTurn     = errors.New("not your turn")
	ErrNotParticipant  = errors.New("not a participant in this session")
	ErrSessionFull     = errors.New("session is full")
	ErrInvalidState    = errors.New("operation not allowed in current session state")
	ErrGameOver        = errors.New("game is over")
	ErrNoDrawOffer     = errors.New("no pending draw offer from opponent")
	ErrSessionNotFound = errors.New("session not found")
)

// selfCheckError is a rule violation that also matches ErrIllegalMove
type selfCheckError struct{}

func (*selfCheckError) Error() string { return "move leaves own king in check" }

func (*selfCheckError) Is(target error) bool { return target == ErrIllegalMove }

// ErrorKind groups session errors into the rejection taxonomy
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindStructural
	KindRuleViolation
	KindSessionState
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindRuleViolation:
		return "rule_violation"
	case KindSessionState:
		return "session_state"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by a session operation to its kind
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrSelfCheck), errors.Is(err, ErrNotYourTurn):
		return KindRuleViolation
	case errors.Is(err, ErrIllegalMove), errors.Is(err, ErrMalformedMove):
		return KindStructural
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrGameOver),
		errors.Is(err, ErrSessionFull), errors.Is(err, ErrNoDrawOffer),
		errors.Is(err, ErrNotParticipant):
		return KindSessionState
	default:
		return KindUnknown
	}
}

// Code returns the wire error code for a session error
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return ErrCodeGameNotFound
	case errors.Is(err, ErrNotYourTurn):
		return ErrCodeNotYourTurn
	case errors.Is(err, ErrIllegalMove), errors.Is(err, ErrMalformedMove):
		return ErrCodeInvalidMove
	case errors.Is(err, ErrNotParticipant):
		return ErrCodeNotParticipant
	case errors.Is(err, ErrSessionFull):
		return ErrCodeSessionFull
	case errors.Is(err, ErrNoDrawOffer):
		return ErrCodeNoDrawOffer
	case errors.Is(err, ErrGameOver):
		return ErrCodeGameOver
	case errors.Is(err, ErrInvalidState):
		return ErrCodeInvalidState
	default:
		return ErrCodeInternalError
	}
}
