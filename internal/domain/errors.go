package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz id does not resolve.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizNotPublished indicates the quiz exists but is still a draft.
	ErrQuizNotPublished = errors.New("quiz not published")
	// ErrLessonNotFound indicates the lesson id does not resolve.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrClassNotFound indicates the class id does not resolve.
	ErrClassNotFound = errors.New("class not found")
	// ErrStudentNotFound indicates the student id does not resolve.
	ErrStudentNotFound = errors.New("student not found")
	// ErrEnrollmentNotFound indicates the student is not enrolled in the class.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrSubmissionNotFound indicates no submission exists for (student, quiz).
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAlreadySubmitted indicates a submission already exists for (student, quiz).
	// The record store's uniqueness constraint surfaces as this error too, so
	// concurrent duplicate submissions cannot both succeed.
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	// ErrInvalidToken indicates a session token that does not resolve to a user.
	ErrInvalidToken = errors.New("invalid session token")
)

// ValidationError reports malformed request input for a specific field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
