package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autovid/autovid/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Queue names, one per pipeline stage. Task signatures must stay stable:
// the orchestrator composes these into chains across worker processes.
const (
	QueueScript    = "script"
	QueueMetadata  = "metadata"
	QueueChunks    = "chunks"
	QueuePrompts   = "prompts"
	QueueThumbnail = "thumbnails"
	QueueImages    = "images"
	QueueVoiceover = "autovid_voiceover"
	QueueVideo     = "video"
	QueueSendToCDN = "send_to_cdn"
)

// AllQueues lists every stage queue a worker must consume.
var AllQueues = []string{
	QueueScript, QueueMetadata, QueueChunks, QueuePrompts, QueueThumbnail,
	QueueImages, QueueVoiceover, QueueVideo, QueueSendToCDN,
}

// QueueFor maps a stage to its queue name.
func QueueFor(stage models.StageName) string {
	switch stage {
	case models.StageScript:
		return QueueScript
	case models.StageMetadata:
		return QueueMetadata
	case models.StageChunks:
		return QueueChunks
	case models.StagePrompts:
		return QueuePrompts
	case models.StageThumbnail:
		return QueueThumbnail
	case models.StageImages:
		return QueueImages
	case models.StageVoiceover:
		return QueueVoiceover
	case models.StageVideo:
		return QueueVideo
	case models.StageSendToCDN:
		return QueueSendToCDN
	}
	return ""
}

// Task is one unit of stage work. Arguments are plain scalars so payloads
// stay JSON-stable across worker versions.
type Task struct {
	ID        uuid.UUID          `json:"id"`
	Stage     models.StageName   `json:"stage"`
	ProjectID int64              `json:"project_id"`
	Topic     string             `json:"topic,omitempty"`
	Chapters  int                `json:"chapters,omitempty"`
	Format    models.VideoFormat `json:"video_format,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewTask builds a stage task from a project's persisted fields, so a task
// can always be resubmitted deterministically.
func NewTask(stage models.StageName, project *models.Project) *Task {
	return &Task{
		ID:        uuid.New(),
		Stage:     stage,
		ProjectID: project.ID,
		Topic:     project.Topic,
		Chapters:  project.Chapters,
		Format:    project.VideoFormat,
		CreatedAt: time.Now(),
	}
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Submit pushes a task onto its stage's queue.
func (q *Queue) Submit(ctx context.Context, task *Task) error {
	queueName := QueueFor(task.Stage)
	if queueName == "" {
		return fmt.Errorf("no queue for stage %q", task.Stage)
	}

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = time.Now()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout for the next task on queueName.
// Returns (nil, nil) when no task arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No task available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (q *Queue) Length(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}
