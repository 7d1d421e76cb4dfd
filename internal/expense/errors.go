package expense

import "errors"

// Sentinel errors shared by the core, the stores and the web layer.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidFileType    = errors.New("invalid file type")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
