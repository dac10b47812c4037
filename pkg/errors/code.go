package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity errors
// 12000-12999: Problem source errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Duel room errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Storage errors (10100-10299)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	CacheError          ErrorCode = 10200
	ObjectStorageError  ErrorCode = 10250

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Identity Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004
	UserMismatch ErrorCode = 11010

	// ========== Problem Source Errors (12000-12999) ==========

	ProblemNotFound     ErrorCode = 12000
	NoProblemAvailable  ErrorCode = 12006
	ProblemInvalid      ErrorCode = 12007
	ProblemSourceFailed ErrorCode = 12008

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Judge (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101

	// ========== Duel Room Errors (14000-14999) ==========

	RoomNotFound       ErrorCode = 14000
	RoomFull           ErrorCode = 14001
	InvalidRoomState   ErrorCode = 14002
	NotInRoom          ErrorCode = 14003
	AlreadyInRoom      ErrorCode = 14004
	SubmissionPending  ErrorCode = 14005
	RoomIDUnavailable  ErrorCode = 14006
	PlayerDisconnected ErrorCode = 14007
	UnknownAction      ErrorCode = 14100
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	CacheError:          "Cache operation failed",
	ObjectStorageError:  "Object storage operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",
	UserMismatch: "Payload user does not match the authenticated user",

	ProblemNotFound:     "Problem not found",
	NoProblemAvailable:  "No approved problem is available",
	ProblemInvalid:      "Problem definition is invalid",
	ProblemSourceFailed: "Problem source is unavailable",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",

	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",

	RoomNotFound:       "Duel room not found",
	RoomFull:           "Duel room is full",
	InvalidRoomState:   "Action is not allowed in the current room state",
	NotInRoom:          "You are not a member of this room",
	AlreadyInRoom:      "You are already in another active duel",
	SubmissionPending:  "Previous submission is still being judged",
	RoomIDUnavailable:  "Could not allocate a room id",
	PlayerDisconnected: "Player is disconnected",
	UnknownAction:      "Unknown action",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == UserMismatch, c == NotInRoom:
		return 403
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound, c == RoomNotFound, c == RecordNotFound:
		return 404
	case c == RoomFull, c == InvalidRoomState, c == AlreadyInRoom, c == SubmissionPending:
		return 409
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable, c == ProblemSourceFailed:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported, c == UnknownAction:
		return 400
	default:
		return 500
	}
}
