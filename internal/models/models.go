package models

import (
	"fmt"
	"time"
)

// VideoFormat selects the target output geometry for a project.
type VideoFormat string

const (
	FormatLong   VideoFormat = "long"   // 1920x1080 landscape
	FormatShorts VideoFormat = "shorts" // 1080x1920 portrait
)

// StageName identifies one unit of pipeline work tracked per project.
type StageName string

const (
	StageScript    StageName = "script"
	StageMetadata  StageName = "metadata"
	StageChunks    StageName = "chunks"
	StageVoiceover StageName = "voiceover"
	StagePrompts   StageName = "prompts"
	StageThumbnail StageName = "thumbnail"
	StageImages    StageName = "images"
	StageVideo     StageName = "video"
	StageSendToCDN StageName = "send_to_cdn"
)

// AllStages lists every stage in pipeline order. Used by the API to return
// a complete stage table even before a stage has been recorded.
var AllStages = []StageName{
	StageScript, StageMetadata, StageChunks, StageVoiceover,
	StagePrompts, StageThumbnail, StageImages, StageVideo, StageSendToCDN,
}

// ValidStage reports whether name is a known pipeline stage.
func ValidStage(name string) bool {
	for _, s := range AllStages {
		if s == StageName(name) {
			return true
		}
	}
	return false
}

// Project is one topic-to-video run. Every stage row and every asset path
// on disk hangs off its ID.
type Project struct {
	ID          int64       `json:"id"`
	Topic       string      `json:"topic"`
	Chapters    int         `json:"chapters"`
	VideoFormat VideoFormat `json:"video_format"`
	Priority    int         `json:"priority"`
	Paused      bool        `json:"paused"`
	TaskID      *string     `json:"task_id,omitempty"` // external queue task identifier
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Stage is the persisted record of one pipeline stage for a project.
// It is mutated only by the stage's own task, at start, finish, or failure.
type Stage struct {
	ID              int64      `json:"id"`
	ProjectID       int64      `json:"project_id"`
	Name            StageName  `json:"name"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Paused          bool       `json:"paused"`
}

// Chunk is one scene's worth of script text. The ID is the stable scene
// number used to name every per-scene artifact on disk. Time is written
// back only after final assembly.
type Chunk struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	Time string `json:"time,omitempty"` // "HH:MM:SS.mmm-HH:MM:SS.mmm"
}

// ImagePrompt pairs a scene id with its generated image prompt.
type ImagePrompt struct {
	ID          int    `json:"id"`
	ImagePrompt string `json:"image_prompt"`
}

// Metadata is the generated upload metadata for a project.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// FormatTimecode renders seconds as "HH:MM:SS.mmm", the format used in
// chunk time intervals.
func FormatTimecode(seconds float64) string {
	ms := int((seconds - float64(int(seconds))) * 1000)
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// TimeInterval renders the half-open interval [start, end) for a chunk.
func TimeInterval(start, end float64) string {
	return FormatTimecode(start) + "-" + FormatTimecode(end)
}

// DTOs for API responses

type ProjectResponse struct {
	Project
	Stages []Stage `json:"stages"`
}

type CreateProjectRequest struct {
	Topic       string  `json:"topic"`
	Chapters    *int    `json:"chapters,omitempty"`     // default 5
	VideoFormat *string `json:"video_format,omitempty"` // default "long"
	Priority    *int    `json:"priority,omitempty"`
}

type CreateProjectResponse struct {
	ProjectID int64  `json:"project_id"`
	TaskID    string `json:"task_id"`
}
