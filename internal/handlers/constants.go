package handlers

const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrSessionNotFound     = "Session not found"
	ErrUnitNotFound        = "Unit not found"
	ErrLevelNotFound       = "Level not found"
	ErrInternalServerError = "Internal server error"

	// maxBodyBytes caps JSON request bodies
	maxBodyBytes = 64 << 10

	audioURLBase = "https://dict.youdao.com/dictvoice"
)
