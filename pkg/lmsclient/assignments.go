package lmsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ListAssignments returns the assignments visible to the credential. Entries
// that do not match the assignment schema or carry an unparsable timestamp
// are reported in Malformed instead of failing the whole list.
func (c *Client) ListAssignments(ctx context.Context, cred Credential) (AssignmentList, error) {
	raw, err := c.do(ctx, cred, http.MethodGet, "/assignments", nil)
	if err != nil {
		return AssignmentList{}, err
	}
	if err := c.schemas.validate(schemaAssignmentList, raw); err != nil {
		return AssignmentList{}, err
	}

	var envelope struct {
		Assignments []json.RawMessage `json:"assignments"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return AssignmentList{}, fmt.Errorf("decode assignment list: %w", err)
	}

	list := AssignmentList{Assignments: make([]Assignment, 0, len(envelope.Assignments))}
	for index, item := range envelope.Assignments {
		assignment, err := c.decodeAssignment(item)
		if err == nil {
			_, err = assignment.Model()
		}
		if err != nil {
			malformed := describeMalformed(index, item, err)
			c.logger.Warn().
				Int("index", index).
				Str("assignment_id", malformed.ID).
				Str("reason", malformed.Reason).
				Msg("skipping malformed assignment in list")
			list.Malformed = append(list.Malformed, malformed)
			continue
		}
		list.Assignments = append(list.Assignments, assignment)
	}

	return list, nil
}

// GetAssignment returns one assignment. Staff credentials receive its submissions.
func (c *Client) GetAssignment(ctx context.Context, cred Credential, id string) (Assignment, error) {
	path, err := assignmentPath(id, "")
	if err != nil {
		return Assignment{}, err
	}
	raw, err := c.do(ctx, cred, http.MethodGet, path, nil)
	if err != nil {
		return Assignment{}, err
	}
	return c.decodeAssignmentEnvelope(raw)
}

// CreateAssignment creates an assignment in a course the credential teaches.
func (c *Client) CreateAssignment(ctx context.Context, cred Credential, payload CreateAssignmentRequest) (Assignment, error) {
	raw, err := c.do(ctx, cred, http.MethodPost, "/assignments", payload)
	if err != nil {
		return Assignment{}, err
	}
	return c.decodeAssignmentEnvelope(raw)
}

// UpdateAssignment applies a partial update.
func (c *Client) UpdateAssignment(ctx context.Context, cred Credential, id string, payload UpdateAssignmentRequest) (Assignment, error) {
	path, err := assignmentPath(id, "")
	if err != nil {
		return Assignment{}, err
	}
	raw, err := c.do(ctx, cred, http.MethodPut, path, payload)
	if err != nil {
		return Assignment{}, err
	}
	return c.decodeAssignmentEnvelope(raw)
}

// DeactivateAssignment soft deletes an assignment by clearing is_active.
func (c *Client) DeactivateAssignment(ctx context.Context, cred Credential, id string) (Assignment, error) {
	inactive := false
	return c.UpdateAssignment(ctx, cred, id, UpdateAssignmentRequest{IsActive: &inactive})
}

// SubmitAssignment submits the credential's work for an assignment.
func (c *Client) SubmitAssignment(ctx context.Context, cred Credential, id string, payload SubmitRequest) (Submission, error) {
	path, err := assignmentPath(id, "/submit")
	if err != nil {
		return Submission{}, err
	}
	raw, err := c.do(ctx, cred, http.MethodPost, path, payload)
	if err != nil {
		return Submission{}, err
	}
	if err := c.schemas.validate(schemaSubmissionEnvelope, raw); err != nil {
		return Submission{}, err
	}

	var envelope struct {
		Submission Submission `json:"submission"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return envelope.Submission, nil
}

// GradeSubmission grades or re-grades a submission and returns the LMS message.
func (c *Client) GradeSubmission(ctx context.Context, cred Credential, submissionID string, payload GradeRequest) (string, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return "", fmt.Errorf("lmsclient: submission id is required")
	}
	raw, err := c.do(ctx, cred, http.MethodPost, "/assignments/submissions/"+url.PathEscape(submissionID)+"/grade", payload)
	if err != nil {
		return "", err
	}
	if err := c.schemas.validate(schemaMessage, raw); err != nil {
		return "", err
	}

	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("decode grade response: %w", err)
	}
	return envelope.Message, nil
}

func (c *Client) decodeAssignment(raw []byte) (Assignment, error) {
	if err := c.schemas.validate(schemaAssignment, raw); err != nil {
		return Assignment{}, err
	}
	var assignment Assignment
	if err := json.Unmarshal(raw, &assignment); err != nil {
		return Assignment{}, fmt.Errorf("decode assignment: %w", err)
	}
	return assignment, nil
}

func (c *Client) decodeAssignmentEnvelope(raw []byte) (Assignment, error) {
	if err := c.schemas.validate(schemaAssignmentEnvelope, raw); err != nil {
		return Assignment{}, err
	}
	var envelope struct {
		Assignment Assignment `json:"assignment"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Assignment{}, fmt.Errorf("decode assignment: %w", err)
	}
	return envelope.Assignment, nil
}

func assignmentPath(id, suffix string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("lmsclient: assignment id is required")
	}
	return "/assignments/" + url.PathEscape(id) + suffix, nil
}

func describeMalformed(index int, raw []byte, err error) MalformedItem {
	item := MalformedItem{Index: index, Reason: err.Error()}

	var partial map[string]interface{}
	if json.Unmarshal(raw, &partial) == nil {
		if id, ok := partial["_id"].(string); ok {
			item.ID = id
		}
		if title, ok := partial["title"].(string); ok {
			item.Title = title
		}
	}
	return item
}
