package response

const (
	CodeInvalidRequest     = "invalid_request"
	CodeAuthentication     = "authentication_failed"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
	MessageInvalidRequest  = "Invalid request format"
	MessageUnauthenticated = "Invalid or expired credentials"
	MessageInternal        = "Internal server error"
)

// Error envelopes are built per request, never shared.

func ErrInvalidRequestFormat(details string) ErrorResponse {
	if details == "" {
		details = MessageInvalidRequest
	}

	return ErrorResponseWithDetails(CodeInvalidRequest, details)
}

func ErrAuthenticationFailed() ErrorResponse {
	return ErrorResponseWithDetails(CodeAuthentication, MessageUnauthenticated)
}

func ErrUserAlreadyExists() ErrorResponse {
	return ErrorResponseWithDetails(CodeUserAlreadyExists, "User with this email or username already exists")
}

func ErrNotFound(details string) ErrorResponse {
	return ErrorResponseWithDetails(CodeNotFound, details)
}

func ErrInternal() ErrorResponse {
	return ErrorResponseWithDetails(CodeInternal, MessageInternal)
}
