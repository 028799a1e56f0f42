package domain

import (
	"strings"
	"time"
)

// IssueLevel is the severity of a detected problem.
type IssueLevel string

const (
	IssueLevelInfo     IssueLevel = "INFO"
	IssueLevelWarning  IssueLevel = "WARNING"
	IssueLevelError    IssueLevel = "ERROR"
	IssueLevelCritical IssueLevel = "CRITICAL"
)

// ParseIssueLevel maps a reported level string to a known severity,
// tolerating the "IssueLevel.X" form emitted by some SDKs. Unknown values
// default to WARNING.
func ParseIssueLevel(s string) IssueLevel {
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		s = s[idx+1:]
	}
	switch IssueLevel(strings.ToUpper(s)) {
	case IssueLevelInfo:
		return IssueLevelInfo
	case IssueLevelWarning:
		return IssueLevelWarning
	case IssueLevelError:
		return IssueLevelError
	case IssueLevelCritical:
		return IssueLevelCritical
	}
	return IssueLevelWarning
}

// Issue is a detected problem produced by an analytics plugin.
type Issue struct {
	ElementHeader `bson:",inline"`

	Level      IssueLevel `json:"level" bson:"level"`
	Confidence float64    `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Effect     []string   `json:"effect,omitempty" bson:"effect,omitempty"`
	Timestamp  time.Time  `json:"timestamp" bson:"timestamp"`
}

// NewIssue builds an Issue owned by rootID.
func NewIssue(rootID, name string, level IssueLevel) *Issue {
	i := &Issue{
		ElementHeader: ElementHeader{Type: KindIssue, RootID: rootID, Name: name},
		Level:         level,
	}
	i.EnsureID()
	return i
}

// Recommendation is remediation advice derived from detected issues.
type Recommendation struct {
	ElementHeader `bson:",inline"`

	Level     IssueLevel `json:"level" bson:"level"`
	Effect    []string   `json:"effect,omitempty" bson:"effect,omitempty"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
}

// AnnotationType classifies an extracted annotation.
type AnnotationType string

const (
	AnnotationRawText AnnotationType = "RAW_TEXT"
	AnnotationSegment AnnotationType = "SEGMENT"
)

// Annotation is a user- or SDK-reported marker extracted from span events.
// Segment annotations address a range inside a string path; content
// annotations carry a title and body.
type Annotation struct {
	ElementHeader `bson:",inline"`

	AnnotationType    AnnotationType `json:"annotation_type" bson:"annotation_type"`
	PathToString      string         `json:"path_to_string,omitempty" bson:"path_to_string,omitempty"`
	SegmentStart      int64          `json:"segment_start,omitempty" bson:"segment_start,omitempty"`
	SegmentEnd        int64          `json:"segment_end,omitempty" bson:"segment_end,omitempty"`
	AnnotationTitle   string         `json:"annotation_title,omitempty" bson:"annotation_title,omitempty"`
	AnnotationContent string         `json:"annotation_content,omitempty" bson:"annotation_content,omitempty"`
	Timestamp         time.Time      `json:"timestamp" bson:"timestamp"`
}
