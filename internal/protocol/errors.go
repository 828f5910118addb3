package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command arguments.
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrMissingOrigin   = "E_MISSING_ORIGIN"
	ErrInvalidArgument = "E_INVALID_ARGUMENT"

	// Interaction layer.
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrCancelled     = "E_CANCELLED"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrMissingOrigin:   {},
	ErrInvalidArgument: {},
	ErrNoPermission:    {},
	ErrInvalidTarget:   {},
	ErrCancelled:       {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
