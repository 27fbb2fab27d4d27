// Package models contains shared data models used across the Crosswalk codebase.
package models

// Control is one compliance requirement belonging to a framework. The catalog
// table is keyed by (frameworkKey, controlKey) with a GSI on controlKey alone.
type Control struct {
	FrameworkKey string `dynamodbav:"frameworkKey" json:"framework_key"`
	ControlKey   string `dynamodbav:"controlKey"   json:"control_key"`
	ControlID    string `dynamodbav:"controlId"    json:"control_id"`
	Title        string `dynamodbav:"title"        json:"title,omitempty"`
	Description  string `dynamodbav:"description"  json:"description,omitempty"`
	Text         string `dynamodbav:"text"         json:"text,omitempty"`
}

// BodyText returns the text used for embedding and reranking: the first
// non-empty of description, text, title.
func (c Control) BodyText() string {
	if c.Description != "" {
		return c.Description
	}
	if c.Text != "" {
		return c.Text
	}
	return c.Title
}

// Framework is a named, versioned collection of controls.
type Framework struct {
	FrameworkName string `dynamodbav:"frameworkName" json:"framework_name"`
	Version       string `dynamodbav:"version"       json:"version"`
	DisplayName   string `dynamodbav:"displayName"   json:"display_name,omitempty"`
}
