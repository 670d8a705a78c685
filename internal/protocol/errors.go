package protocol

// ErrorType enumerates the error conditions the server reports to clients.
// It implements error so domain operations can return the codes directly.
type ErrorType string

const (
	ErrUnknown                 ErrorType = "unknown"
	ErrInvalidPacket           ErrorType = "invalidPacket"
	ErrUsernameTaken           ErrorType = "usernameTaken"
	ErrAlreadyLoggedIn         ErrorType = "alreadyLoggedIn"
	ErrNotLoggedIn             ErrorType = "notLoggedIn"
	ErrUserNotFound            ErrorType = "userNotFound"
	ErrCannotAddSelf           ErrorType = "cannotAddSelf"
	ErrChannelNotFound         ErrorType = "channelNotFound"
	ErrUserAlreadyInChannel    ErrorType = "userAlreadyInChannel"
	ErrInsufficientPermissions ErrorType = "insufficientPermissions"
	ErrUserNotInChannel        ErrorType = "userNotInChannel"
	ErrChannelAlreadyExists    ErrorType = "channelAlreadyExists"
)

func (e ErrorType) Error() string { return string(e) }

var errorMessages = map[ErrorType]string{
	ErrUnknown:                 "an unknown error occurred",
	ErrInvalidPacket:           "the packet could not be parsed",
	ErrUsernameTaken:           "that nickname is already taken",
	ErrAlreadyLoggedIn:         "there is already a user logged in on this connection or nickname",
	ErrNotLoggedIn:             "log in before sending requests",
	ErrUserNotFound:            "no user with that nickname exists",
	ErrCannotAddSelf:           "you cannot open a channel with yourself",
	ErrChannelNotFound:         "no channel with that id exists",
	ErrUserAlreadyInChannel:    "that user is already a member of the channel",
	ErrInsufficientPermissions: "you do not have permission to do that",
	ErrUserNotInChannel:        "that user is not a member of the channel",
	ErrChannelAlreadyExists:    "a channel with these members already exists",
}

// ErrorMessage returns the human-readable description for an error code.
func ErrorMessage(e ErrorType) string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return errorMessages[ErrUnknown]
}

// AsErrorType maps any error to a wire error code, collapsing unexpected
// errors to ErrUnknown.
func AsErrorType(err error) ErrorType {
	if e, ok := err.(ErrorType); ok {
		return e
	}
	return ErrUnknown
}
