package domain

import "errors"

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAMember           = errors.New("not a member of the target")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrNotFound             = errors.New("message not found")
	ErrStoreUnavailable     = errors.New("message store unavailable")
	ErrForbidden            = errors.New("only the author may modify the message")
	ErrInvalidRoom          = errors.New("invalid room key")
	ErrInvalidCursor        = errors.New("invalid cursor")
)

// Code - стабильный код ошибки для клиента (ws error frame / http body).
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidRoom):
		return "invalid_room"
	case errors.Is(err, ErrInvalidCursor):
		return "invalid_cursor"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
