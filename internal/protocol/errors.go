package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Agent routing/state.
	ErrAgentNotFound     = "E_AGENT_NOT_FOUND"
	ErrNotConnected      = "E_NOT_CONNECTED"
	ErrAlreadyControlled = "E_ALREADY_CONTROLLED"
	ErrNotController     = "E_NOT_CONTROLLER"

	// World action layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNoPath     = "E_NO_PATH"
	ErrRestDenied = "E_REST_DENIED"
	ErrDropDenied = "E_DROP_DENIED"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrAgentNotFound:     {},
	ErrNotConnected:      {},
	ErrAlreadyControlled: {},
	ErrNotController:     {},
	ErrBadRequest:        {},
	ErrNoPath:            {},
	ErrRestDenied:        {},
	ErrDropDenied:        {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
