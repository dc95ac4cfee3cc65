package errors

import "net/http"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	Status     int
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Session Errors (E100-E109)
	// ============================================

	"E100": {
		Category: CategorySession,
		Message:  "Session not found",
		Detail:   "The comparison session does not exist. It may have ended, been evicted or expired after being idle.",
		Status:   http.StatusNotFound,
	},
	"E101": {
		Category: CategorySession,
		Message:  "Too many sessions from this address",
		Detail:   "The per-IP session limit was reached. End an existing comparison session before starting another.",
		Status:   http.StatusTooManyRequests,
	},
	"E102": {
		Category: CategorySession,
		Message:  "Session limit reached",
		Detail:   "The server is hosting the maximum number of comparison sessions.",
		Status:   http.StatusServiceUnavailable,
	},
	"E103": {
		Category: CategorySession,
		Message:  "Server is shutting down",
		Detail:   "The session manager has stopped and no longer accepts requests.",
		Status:   http.StatusServiceUnavailable,
	},

	// ============================================
	// Protocol Errors (E110-E119)
	// ============================================

	"E110": {
		Category: CategoryProtocol,
		Message:  "Malformed command",
		Detail:   "The request body is not a valid JSON command.",
		Status:   http.StatusBadRequest,
	},
	"E111": {
		Category: CategoryProtocol,
		Message:  "Unknown operation",
		Detail:   "The command names an operation the overlay registry does not support.",
		Status:   http.StatusBadRequest,
	},
	"E112": {
		Category: CategoryProtocol,
		Message:  "Missing field",
		Detail:   "The command is missing a field its operation requires.",
		Status:   http.StatusBadRequest,
	},
	"E113": {
		Category: CategoryProtocol,
		Message:  "Payload too large",
		Detail:   "The request body exceeds the maximum message or batch size.",
		Status:   http.StatusRequestEntityTooLarge,
	},

	// ============================================
	// Config Errors (E120-E129)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Failed to read configuration",
		Detail:   "The configuration file could not be read or written.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid configuration syntax",
		Detail:   "The configuration file could not be parsed.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
		Detail:   "The server address must be host:port with a port between 0 and 65535.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or malformed.",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No configuration file exists at the given path.",
	},

	// ============================================
	// Upload Errors (E130-E139)
	// ============================================

	"E130": {
		Category: CategoryUpload,
		Message:  "Upload not found",
		Detail:   "The image payload does not exist or has been cleaned up.",
		Status:   http.StatusNotFound,
	},
	"E131": {
		Category: CategoryUpload,
		Message:  "Upload storage failed",
		Detail:   "The image payload store returned an error.",
		Status:   http.StatusInternalServerError,
	},
	"E132": {
		Category:   CategoryUpload,
		Message:    "Invalid upload",
		Detail:     "The request is not a multipart form with a readable \"file\" field.",
		Suggestion: "Send multipart/form-data with the image in a field named \"file\"",
		Status:     http.StatusBadRequest,
	},
	"E133": {
		Category: CategoryUpload,
		Message:  "Unsupported file type",
		Detail:   "Only image payloads are accepted.",
		Status:   http.StatusUnsupportedMediaType,
	},

	// ============================================
	// Server Errors (E140-E149)
	// ============================================

	"E140": {
		Category: CategoryServer,
		Message:  "Internal server error",
		Detail:   "An unexpected error occurred while handling the request.",
		Status:   http.StatusInternalServerError,
	},
	"E141": {
		Category: CategoryServer,
		Message:  "Server failed to start",
		Detail:   "The HTTP listener could not be started.",
	},
	"E142": {
		Category: CategoryServer,
		Message:  "Method not allowed",
		Detail:   "The endpoint does not accept this HTTP method.",
		Status:   http.StatusMethodNotAllowed,
	},

	// ============================================
	// CLI Errors (E150-E159)
	// ============================================

	"E150": {
		Category:   CategoryCLI,
		Message:    "Invalid command arguments",
		Detail:     "A flag or argument has a value the command cannot use.",
		Suggestion: "Run the command with --help to see accepted values",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
