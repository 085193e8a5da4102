package agent

// Error codes for agent loading.
const (
	ErrCodeConfigInvalid = "CONFIG_INVALID"
	ErrCodeFileIO        = "FILE_IO"
	ErrCodeIncludeDepth  = "INCLUDE_DEPTH_EXCEEDED"
	ErrCodePathEscape    = "PATH_ESCAPE_ATTEMPT"
)
