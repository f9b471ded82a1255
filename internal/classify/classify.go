// Package classify assigns a coarse activity label to a frame batch using a
// vision-language model. The client fails closed: callers always get a label
// from the fixed set, never an error.
package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/capture"
	"github.com/nidhogg/clippy/internal/provider"
)

// DefaultConfidence is used when the model names a label but omits confidence.
const DefaultConfidence = 0.5

// Classification is the classifier verdict for one batch.
type Classification struct {
	Label      activity.Label `json:"classification"`
	Confidence float64        `json:"confidence"`
}

// FailClosed is the verdict for any failed classification.
var FailClosed = Classification{Label: activity.LabelNormal, Confidence: 0}

// Client classifies frame batches.
type Client interface {
	Classify(ctx context.Context, batch capture.Batch) Classification
}

// Chatter routes a chat request for a purpose; *provider.Router implements it.
type Chatter interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// VisionClassifier is the model-backed Client.
type VisionClassifier struct {
	chat   Chatter
	logger *zap.Logger
}

// New creates a VisionClassifier.
func New(chat Chatter, logger *zap.Logger) *VisionClassifier {
	return &VisionClassifier{chat: chat, logger: logger}
}

// Classify sends the batch to the classify model and parses the verdict.
func (c *VisionClassifier) Classify(ctx context.Context, batch capture.Batch) Classification {
	if batch.Empty() {
		c.logger.Warn("classify called with empty batch")
		return FailClosed
	}
	images := provider.BatchImages(batch)
	if len(images) == 0 {
		return FailClosed
	}

	req := &provider.ChatRequest{
		Messages: []provider.Message{{
			Role:    "user",
			Content: Prompt(len(images)),
			Images:  images,
		}},
		MaxTokens:   100,
		Temperature: 0.3,
	}
	resp, err := c.chat.Route(ctx, provider.PurposeClassify, req)
	if err != nil {
		c.logger.Warn("classification request failed",
			zap.String("batch", batch.ID), zap.Error(err))
		return FailClosed
	}

	out, err := Parse(resp.Content)
	if err != nil {
		c.logger.Warn("classification response unparseable",
			zap.String("batch", batch.ID), zap.Error(err))
		return FailClosed
	}
	c.logger.Debug("batch classified",
		zap.String("batch", batch.ID),
		zap.String("label", string(out.Label)),
		zap.Float64("confidence", out.Confidence))
	return out
}

// Prompt is the instruction sent alongside n frames.
func Prompt(n int) string {
	return fmt.Sprintf(`You are given %d sequential screenshots captured about one second apart (oldest first). Classify the user's overall activity as one of:
- "error": visible error messages, exceptions, stack traces
- "idle": little change between frames, the user is reading or waiting
- "normal": active work that fits no other category
- "writing": composing documents, emails, markdown or other prose
- "research": browsing the web, reading articles, looking things up
- "code": writing or editing code in an IDE or editor

Respond with JSON only: {"classification":"error|idle|normal|writing|research|code","confidence":0.0-1.0}`, n)
}
