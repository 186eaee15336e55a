// Package scene owns scene identity and the per-project asset layout.
//
// A scene is identified by an integer id. Canonical artifact names use
// 3-digit zero padding ("scene_007.mp4"), but upstream producers have
// historically written both 2- and 3-digit names, so every read-side lookup
// probes the widths 2, 3 and bare, in that order, and takes the first hit.
// All new files are written with the canonical width.
package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/autovid/autovid/internal/models"
)

// numberWidths is the fixed probe order for legacy scene numbering.
var numberWidths = []int{2, 3, 0}

// Number renders a scene id at the canonical 3-digit width.
func Number(sceneID int) string {
	return fmt.Sprintf("%03d", sceneID)
}

// fileName renders one candidate artifact name at a given padding width.
func fileName(sceneID, width int, suffix, ext string) string {
	if width == 0 {
		return fmt.Sprintf("scene_%d%s.%s", sceneID, suffix, ext)
	}
	return fmt.Sprintf("scene_%0*d%s.%s", width, sceneID, suffix, ext)
}

// FindAsset locates a scene artifact in dir, probing each legacy numbering
// width and each extension, and returns the first existing path.
// Returns "" when nothing matches.
func FindAsset(dir string, sceneID int, exts ...string) string {
	for _, width := range numberWidths {
		for _, ext := range exts {
			path := filepath.Join(dir, fileName(sceneID, width, "", ext))
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// FindPartImage locates (or names) a part's still image alongside the
// scene's original image, matching the original image's numbering width.
func FindPartImage(originalImagePath string, partIndex int) string {
	ext := filepath.Ext(originalImagePath)
	base := originalImagePath[:len(originalImagePath)-len(ext)]
	return fmt.Sprintf("%s_part_%02d%s", base, partIndex, ext)
}

// Info is the transient record for one scene discovered on disk. Duration
// is derived from the audio file and is the single source of truth for
// animation timing.
type Info struct {
	SceneID      int
	ImagePath    string
	AudioPath    string
	OutputPath   string
	SubtitlePath string
	Duration     float64
}

// Layout resolves every per-project path in the asset tree. The tree is
// partitioned by project id, so concurrent projects never contend.
type Layout struct {
	Root      string
	ProjectID int64
}

func NewLayout(root string, projectID int64) Layout {
	return Layout{Root: root, ProjectID: projectID}
}

func (l Layout) projectDir(kind string) string {
	return filepath.Join(l.Root, kind, fmt.Sprintf("%d", l.ProjectID))
}

func (l Layout) ScriptFile() string   { return filepath.Join(l.projectDir("scripts"), "script.txt") }
func (l Layout) ChunksFile() string   { return filepath.Join(l.projectDir("chunks"), "chunks.json") }
func (l Layout) PromptsFile() string  { return filepath.Join(l.projectDir("prompts"), "image_prompts.json") }
func (l Layout) MetadataFile() string { return filepath.Join(l.projectDir("metadata"), "metadata.json") }
func (l Layout) ScenesDir() string    { return l.projectDir("scenes") }
func (l Layout) AudioDir() string     { return l.projectDir("audio") }
func (l Layout) VideoDir() string     { return l.projectDir("video") }

func (l Layout) MergedAudio() string { return filepath.Join(l.AudioDir(), "merged_output.mp3") }
func (l Layout) FinalVideo() string  { return filepath.Join(l.VideoDir(), "final_video.mp4") }

func (l Layout) ThumbnailFile() string {
	return filepath.Join(l.Root, "thumbnail", fmt.Sprintf("thumbnail_%d.jpg", l.ProjectID))
}

// SceneImage returns the canonical path for a scene's still image.
func (l Layout) SceneImage(sceneID int) string {
	return filepath.Join(l.ScenesDir(), fileName(sceneID, 3, "", "jpg"))
}

// SceneAudio returns the canonical path for a scene's voiceover clip.
func (l Layout) SceneAudio(sceneID int) string {
	return filepath.Join(l.AudioDir(), fileName(sceneID, 3, "", "mp3"))
}

// BaseClip returns the canonical path for a scene's locally rendered clip.
func (l Layout) BaseClip(sceneID int) string {
	return filepath.Join(l.VideoDir(), fileName(sceneID, 3, "", "mp4"))
}

// AnimatedClip returns the path for a scene's merged animated clip.
func (l Layout) AnimatedClip(sceneID int) string {
	return filepath.Join(l.VideoDir(), fileName(sceneID, 3, "_animated", "mp4"))
}

// AnimatedPartClip returns the path for one animated part before merging.
func (l Layout) AnimatedPartClip(sceneID, partIndex int) string {
	suffix := fmt.Sprintf("_part_%02d_animated", partIndex)
	return filepath.Join(l.VideoDir(), fileName(sceneID, 3, suffix, "mp4"))
}

// FindSceneImage probes legacy numbering widths for a scene's image.
func (l Layout) FindSceneImage(sceneID int) string {
	return FindAsset(l.ScenesDir(), sceneID, "jpg", "jpeg", "png")
}

// FindSceneAudio probes legacy numbering widths for a scene's audio.
func (l Layout) FindSceneAudio(sceneID int) string {
	return FindAsset(l.AudioDir(), sceneID, "mp3")
}

// FindBaseClip probes legacy numbering widths for a scene's base clip.
func (l Layout) FindBaseClip(sceneID int) string {
	return FindAsset(l.VideoDir(), sceneID, "mp4")
}

// ProjectDirs lists every directory belonging to the project, for cleanup
// after successful CDN delivery.
func (l Layout) ProjectDirs() []string {
	return []string{
		l.projectDir("scripts"),
		l.projectDir("chunks"),
		l.projectDir("prompts"),
		l.projectDir("metadata"),
		l.ScenesDir(),
		l.AudioDir(),
		l.VideoDir(),
	}
}

// SaveScript writes the full narration text.
func (l Layout) SaveScript(script string) error {
	path := l.ScriptFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create scripts dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

// LoadScript reads the narration text.
func (l Layout) LoadScript() (string, error) {
	data, err := os.ReadFile(l.ScriptFile())
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// SaveMetadata writes the publish metadata.
func (l Layout) SaveMetadata(meta *models.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	path := l.MetadataFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the publish metadata.
func (l Layout) LoadMetadata() (*models.Metadata, error) {
	data, err := os.ReadFile(l.MetadataFile())
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// LoadChunks reads the project's ordered chunk list.
func (l Layout) LoadChunks() ([]models.Chunk, error) {
	data, err := os.ReadFile(l.ChunksFile())
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse chunks file: %w", err)
	}
	return chunks, nil
}

// SaveChunks writes the chunk list back, creating the directory if needed.
func (l Layout) SaveChunks(chunks []models.Chunk) error {
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}

	path := l.ChunksFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chunks dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chunks file: %w", err)
	}
	return nil
}

// LoadPrompts reads the project's image prompts keyed by scene id.
func (l Layout) LoadPrompts() (map[int]string, error) {
	data, err := os.ReadFile(l.PromptsFile())
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts []models.ImagePrompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	out := make(map[int]string, len(prompts))
	for _, p := range prompts {
		out[p.ID] = p.ImagePrompt
	}
	return out, nil
}

// SavePrompts writes the image prompt list.
func (l Layout) SavePrompts(prompts []models.ImagePrompt) error {
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prompts: %w", err)
	}

	path := l.PromptsFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create prompts dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	return nil
}
