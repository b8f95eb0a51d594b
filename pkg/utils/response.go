package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"plugin-hub-backend/pkg/models"
)

// APIResponse is the standard response envelope
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a stable machine-readable code plus a human message
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSONResponse writes a success envelope with the given status code
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteSuccessResponse writes a 200 envelope
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse writes a 201 envelope
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteErrorResponse writes a generic error envelope
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteErrorResponseWithCode(w, statusCode, "ERROR", message, nil)
}

// WriteErrorResponseWithCode writes an error envelope with an explicit code
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteBadRequestResponse writes a 400 error envelope
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

// WriteUnauthorizedResponse writes a 401 error envelope
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// WriteForbiddenResponse writes a 403 error envelope
func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// WriteNotFoundResponse writes a 404 error envelope
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// WriteConflictResponse writes a 409 error envelope
func WriteConflictResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusConflict, "CONFLICT", message, nil)
}

// WriteInternalServerErrorResponse writes a 500 error envelope
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, nil)
}

// WriteDomainErrorResponse maps the typed core failures onto the envelope.
// The distinguishing kind is never collapsed into a generic 500.
func WriteDomainErrorResponse(w http.ResponseWriter, err error) {
	var permErr *models.InvalidPermissionSetError
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
	case errors.Is(err, models.ErrForbidden):
		WriteForbiddenResponse(w, "Insufficient rights for this operation")
	case errors.Is(err, models.ErrPluginNotFound):
		WriteErrorResponseWithCode(w, http.StatusNotFound, "PLUGIN_NOT_FOUND", "Plugin not found in marketplace", nil)
	case errors.Is(err, models.ErrItemNotFound):
		WriteErrorResponseWithCode(w, http.StatusNotFound, "ITEM_NOT_FOUND", "Marketplace item not found", nil)
	case errors.Is(err, models.ErrAlreadyInstalled):
		WriteErrorResponseWithCode(w, http.StatusConflict, "ALREADY_INSTALLED", "Plugin is already installed", nil)
	case errors.Is(err, models.ErrNotInstalled):
		WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_INSTALLED", "Plugin is not installed", nil)
	case errors.Is(err, models.ErrUnknownPermission):
		WriteErrorResponseWithCode(w, http.StatusBadRequest, "UNKNOWN_PERMISSION", err.Error(), nil)
	case errors.As(err, &permErr):
		WriteErrorResponseWithCode(w, http.StatusBadRequest, "INVALID_PERMISSION_SET",
			"Manifest declares unrecognized permissions", permErr.Unknown)
	case errors.Is(err, models.ErrStorageUnavailable):
		WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Plugin storage is unavailable", nil)
	case errors.Is(err, models.ErrBackendFault):
		WriteErrorResponseWithCode(w, http.StatusBadGateway, "BACKEND_FAULT", "Persistence backend failure", nil)
	default:
		WriteInternalServerErrorResponse(w, err.Error())
	}
}

// ParseJSONBody decodes a JSON request body into v
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// GetQueryParam returns a query parameter or a default when absent
func GetQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}
