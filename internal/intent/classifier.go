package intent

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/logger"
)

// DefaultThreshold is the lowest remote confidence that is trusted.
const DefaultThreshold = 0.3

var timeSensitive = regexp.MustCompile(`(?i)\b(today|tonight|right now|currently|showtimes?|playing near|` +
	`weather|score|news today|price of|stock price|open now|hours today|` +
	`near me|latest|breaking|what.s happening)\b`)

// Labeler produces a raw label for text, typically a remote model.
type Labeler interface {
	Label(ctx context.Context, text string) (Result, error)
}

// Classifier runs the time-sensitive fast path, then the labeler, and falls
// back to knowledge whenever the labeler fails or is unsure.
type Classifier struct {
	labeler   Labeler
	threshold float64
}

func NewClassifier(labeler Labeler, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{labeler: labeler, threshold: threshold}
}

func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if timeSensitive.MatchString(text) {
		return Result{Intent: Search, Confidence: 1.0, Source: SourceFastPath}
	}

	fallback := Result{Intent: Knowledge, Confidence: 0, Source: SourceDefault}
	if c.labeler == nil {
		return fallback
	}

	res, err := c.labeler.Label(ctx, text)
	if err != nil {
		logger.FromContext(ctx).Warn("Intent classifier unavailable, defaulting to knowledge", "error", err)
		return fallback
	}
	if res.Confidence < c.threshold {
		logger.FromContext(ctx).Debug("Low confidence intent, defaulting to knowledge",
			"label", res.Intent, "confidence", res.Confidence)
		fallback.Confidence = res.Confidence
		return fallback
	}
	return res
}

// RemoteLabeler calls POST /classify on the classifier service.
type RemoteLabeler struct {
	client *auth.Client
}

func NewRemoteLabeler(client *auth.Client) *RemoteLabeler {
	return &RemoteLabeler{client: client}
}

func (l *RemoteLabeler) Label(ctx context.Context, text string) (Result, error) {
	var resp struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := l.client.Do(ctx, http.MethodPost, "/classify", map[string]string{"text": text}, &resp); err != nil {
		return Result{}, err
	}
	in, ok := Parse(resp.Intent)
	if !ok {
		slog.Debug("Unknown intent label", "label", resp.Intent)
		return Result{Intent: Knowledge, Confidence: 0, Source: SourceRemote}, nil
	}
	return Result{Intent: in, Confidence: resp.Confidence, Source: SourceRemote}, nil
}

var (
	actionCue = regexp.MustCompile(`(?i)\b(run|execute|create an?|generate an?|build an?|automate|check|list|show me|` +
		`kill|restart|deploy|convert|fetch|download|scan|backup|clean ?up|count)\b`)
	taskCue = regexp.MustCompile(`(?i)\b(my tasks?|todo|to-do|pending tasks?|remind me|reminders?|my notes?|what did i)\b`)
	chatCue = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|good (morning|afternoon|evening)|how are you)\b`)
)

// KeywordLabeler is the offline labeler used when no classifier service is
// configured.
type KeywordLabeler struct{}

func (KeywordLabeler) Label(_ context.Context, text string) (Result, error) {
	t := strings.TrimSpace(text)
	switch {
	case chatCue.MatchString(t):
		return Result{Intent: Chat, Confidence: 0.6, Source: SourceKeywords}, nil
	case taskCue.MatchString(t):
		return Result{Intent: Task, Confidence: 0.6, Source: SourceKeywords}, nil
	case actionCue.MatchString(t):
		return Result{Intent: Action, Confidence: 0.5, Source: SourceKeywords}, nil
	}
	return Result{Intent: Knowledge, Confidence: 0.5, Source: SourceKeywords}, nil
}
