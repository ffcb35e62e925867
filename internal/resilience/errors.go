// Copyright 2025 CertHub API Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the error body returned by every endpoint
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode classifies a failure for clients
type ErrorCode string

const (
	// Client errors (4xx)
	ErrorCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrorCodeForbidden  ErrorCode = "FORBIDDEN"

	// Server errors (5xx)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeGenerationFailed   ErrorCode = "GENERATION_FAILED"
	ErrorCodeDependencyFailure  ErrorCode = "DEPENDENCY_FAILURE"
	ErrorCodeFeatureDisabled    ErrorCode = "FEATURE_DISABLED"
)

// ServiceError pairs a user-facing message with the internal cause.
// Only Message and Code ever reach the client.
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewBadRequestError is a client input error
func NewBadRequestError(message string) *ServiceError {
	return NewServiceError(message, ErrorCodeBadRequest, http.StatusBadRequest, nil)
}

// NewForbiddenError rejects an operator call without valid credentials
func NewForbiddenError(message string) *ServiceError {
	return NewServiceError(message, ErrorCodeForbidden, http.StatusForbidden, nil)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// NewGenerationError reports a failed generative provider call
func NewGenerationError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeGenerationFailed, http.StatusInternalServerError, internal)
}

// NewDependencyFailureError reports an upstream provider failure that the
// endpoint cannot degrade around
func NewDependencyFailureError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeDependencyFailure, http.StatusInternalServerError, internal)
}

// NewFeatureDisabledError reports an endpoint whose provider key is not configured
func NewFeatureDisabledError(message string) *ServiceError {
	return NewServiceError(message, ErrorCodeFeatureDisabled, http.StatusInternalServerError, nil)
}

// NewServiceUnavailableError creates a new service unavailable error
func NewServiceUnavailableError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, internal)
}

// ErrorHandler writes ServiceErrors to gin responses and logs their causes
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// Respond aborts the request with err. Errors that are not ServiceErrors are
// reported as a generic internal error so nothing internal leaks.
func (eh *ErrorHandler) Respond(c *gin.Context, operation string, err error, fields ...zap.Field) {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		serviceErr = NewInternalError("요청을 처리하는 중 오류가 발생했습니다.", err)
	}

	requestID := c.GetString(RequestIDKey)

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.String("error_code", string(serviceErr.Code)),
		zap.Int("status_code", serviceErr.StatusCode),
		zap.String("request_id", requestID),
	}
	if serviceErr.Internal != nil {
		logFields = append(logFields, zap.Error(serviceErr.Internal))
	}
	logFields = append(logFields, fields...)

	if serviceErr.StatusCode >= http.StatusInternalServerError {
		eh.logger.Error("Request failed", logFields...)
	} else {
		eh.logger.Warn("Request rejected", logFields...)
	}

	c.AbortWithStatusJSON(serviceErr.StatusCode, serviceErr.ToErrorResponse(requestID))
}

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"
