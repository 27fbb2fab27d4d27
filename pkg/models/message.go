package models

import "fmt"

// DispatchMessage is the SQS payload handed from the accept path to the
// dispatch worker. job_id, control_key and target_framework_key are all
// mandatory; a message missing any of them can never succeed and is dropped
// without retry.
type DispatchMessage struct {
	JobID              string   `json:"job_id"`
	ControlKey         string   `json:"control_key"`
	TargetFrameworkKey string   `json:"target_framework_key"`
	TargetControlIDs   []string `json:"target_control_ids,omitempty"`
}

// Validate checks the mandatory fields.
func (m DispatchMessage) Validate() error {
	if m.JobID == "" {
		return fmt.Errorf("dispatch message missing job_id")
	}
	if m.ControlKey == "" {
		return fmt.Errorf("dispatch message missing control_key")
	}
	if m.TargetFrameworkKey == "" {
		return fmt.Errorf("dispatch message missing target_framework_key")
	}
	return nil
}
