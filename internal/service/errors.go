package service

import "errors"

var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrCourseNotFound indicates the course referenced by a payload does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrForbidden is returned when the actor may not touch the resource.
	ErrForbidden = errors.New("access denied")
	// ErrAlreadySubmitted is returned for a second submission to the same assignment.
	ErrAlreadySubmitted = errors.New("assignment already submitted")
	// ErrGradeOutOfRange indicates a grade outside 0..max_points.
	ErrGradeOutOfRange = errors.New("grade out of range")
	// ErrStatisticsUnavailable is returned when the assignment list itself could not be loaded.
	ErrStatisticsUnavailable = errors.New("assignment statistics unavailable")
	// ErrUploadUnavailable is returned when a file arrives but no uploader is configured.
	ErrUploadUnavailable = errors.New("file uploads are not configured")
	// ErrFeedbackUnavailable is returned when no feedback suggester is configured.
	ErrFeedbackUnavailable = errors.New("feedback suggestions are not configured")
)
