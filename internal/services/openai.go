package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/autovid/autovid/internal/models"
)

// promptConcurrency bounds the per-chunk image prompt fan-out.
const promptConcurrency = 4

// OpenAIService generates scripts, metadata, chunk splits and image prompts.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// chat sends one system+user exchange and returns the raw content.
func (s *OpenAIService) chat(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.8,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateScript writes the full narration for a topic. Long videos are
// written chapter by chapter so each call stays within a comfortable output
// size; shorts are a single tight pass.
func (s *OpenAIService) GenerateScript(ctx context.Context, topic string, chapters int, format models.VideoFormat) (string, error) {
	if format == models.FormatShorts {
		script, err := s.chat(ctx, shortsScriptSystemPrompt,
			fmt.Sprintf("Write the narration for a short vertical video about: %q", topic), false)
		if err != nil {
			return "", err
		}
		log.Printf("[OpenAI] Shorts script generated (%d chars)", len(script))
		return strings.TrimSpace(script), nil
	}

	if chapters < 1 {
		chapters = 1
	}
	var sb strings.Builder
	for ch := 1; ch <= chapters; ch++ {
		userPrompt := fmt.Sprintf(
			"Topic: %q\nWrite chapter %d of %d. Continue the narrative seamlessly from earlier chapters; do not recap or restate the topic.",
			topic, ch, chapters)
		if ch > 1 {
			userPrompt += fmt.Sprintf("\n\nThe story so far (do not repeat, continue from here):\n%s", tailOf(sb.String(), 1500))
		}

		chapter, err := s.chat(ctx, longScriptSystemPrompt, userPrompt, false)
		if err != nil {
			return "", fmt.Errorf("chapter %d failed: %w", ch, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(chapter))
		log.Printf("[OpenAI] Chapter %d/%d generated (%d chars total)", ch, chapters, sb.Len())
	}
	return sb.String(), nil
}

// GenerateMetadata produces the publish title, description and tags.
func (s *OpenAIService) GenerateMetadata(ctx context.Context, topic, script string) (*models.Metadata, error) {
	userPrompt := fmt.Sprintf("Topic: %q\n\nScript:\n%s", topic, tailOf(script, 6000))
	raw, err := s.chat(ctx, metadataSystemPrompt, userPrompt, true)
	if err != nil {
		return nil, err
	}

	var meta models.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		log.Printf("[OpenAI] Metadata parse failed, raw: %s", truncateString(raw, 500))
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("metadata has no title")
	}
	return &meta, nil
}

// ChunkScript splits the narration into scene-sized chunks of roughly
// chunkSec seconds of speech each. Ids are assigned sequentially from 1.
func (s *OpenAIService) ChunkScript(ctx context.Context, script string, chunkSec int) ([]models.Chunk, error) {
	systemPrompt := fmt.Sprintf(chunkSystemPromptTemplate, chunkSec)
	raw, err := s.chat(ctx, systemPrompt, script, true)
	if err != nil {
		return nil, err
	}

	var out struct {
		Chunks []struct {
			Text string `json:"text"`
		} `json:"chunks"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("[OpenAI] Chunk parse failed, raw: %s", truncateString(raw, 500))
		return nil, fmt.Errorf("failed to parse chunks: %w", err)
	}
	if len(out.Chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no chunks")
	}

	chunks := make([]models.Chunk, 0, len(out.Chunks))
	for i, c := range out.Chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{ID: i + 1, Text: text})
	}
	log.Printf("[OpenAI] Script split into %d chunks (~%ds each)", len(chunks), chunkSec)
	return chunks, nil
}

// GeneratePrompts writes one image prompt per chunk with a bounded fan-out.
// Results come back in chunk order regardless of completion order.
func (s *OpenAIService) GeneratePrompts(ctx context.Context, topic string, chunks []models.Chunk) ([]models.ImagePrompt, error) {
	prompts := make([]models.ImagePrompt, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(promptConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			userPrompt := fmt.Sprintf("Video topic: %q\n\nNarration for this scene:\n%s", topic, chunk.Text)
			raw, err := s.chat(gctx, imagePromptSystemPrompt, userPrompt, false)
			if err != nil {
				return fmt.Errorf("prompt for scene %d failed: %w", chunk.ID, err)
			}
			mu.Lock()
			prompts[i] = models.ImagePrompt{ID: chunk.ID, ImagePrompt: strings.TrimSpace(raw)}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(prompts, func(a, b int) bool { return prompts[a].ID < prompts[b].ID })
	return prompts, nil
}

func tailOf(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

const longScriptSystemPrompt = `You are a documentary narrator writing voiceover scripts for long-form faceless videos.
Write flowing spoken prose — no headings, no scene markers, no stage directions, no lists.
Use short, punchy sentences and contractions. Build narrative momentum: hook, development, payoff.
Each chapter should run roughly 2-3 minutes of narration when read aloud at a natural pace.`

const shortsScriptSystemPrompt = `You are writing the voiceover for a 30-45 second vertical short.
Open with a hook in the first sentence. Keep every sentence short and spoken-sounding.
No headings, no hashtags, no stage directions — narration text only.`

const metadataSystemPrompt = `You write publish metadata for videos. Respond with JSON:
{"title": "...", "description": "...", "tags": ["...", "..."]}
Title under 90 characters, curiosity-driven but not clickbait. Description 2-4 sentences.
8-14 tags, lowercase, no hash signs.`

const chunkSystemPromptTemplate = `Split the narration you receive into consecutive scene chunks.
Each chunk should take about %d seconds to read aloud (roughly 1-2 sentences).
Never rewrite, reorder or drop any text — the concatenation of all chunks must equal the input.
Cut only at sentence boundaries. Respond with JSON: {"chunks": [{"text": "..."}, ...]}`

const imagePromptSystemPrompt = `You write a single image-generation prompt for one scene of a faceless video.
Describe subject, setting, lighting and atmosphere in one detailed sentence cluster.
Cinematic photographic style, no text or captions in the image, no real people's names.
Respond with the prompt text only.`
