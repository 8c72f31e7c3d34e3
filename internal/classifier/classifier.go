package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexus-chat/moderation-service/internal/config"
	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/observability"
	"github.com/nexus-chat/moderation-service/pkg/util/httpclient"
)

// Image provider names accepted by CLASSIFIER_IMAGE_PROVIDER.
const (
	ProviderVision = "vision"
	ProviderHive   = "hive"
	ProviderNone   = "none"
)

// ImageClassifier labels uploaded images. Implementations call out to a
// remote service and may fail.
type ImageClassifier interface {
	Name() string
	ClassifyImage(ctx context.Context, image []byte, contentType string) (domain.Verdict, error)
}

// Classifier combines the local text rules with the configured image provider.
type Classifier struct {
	text    *TextClassifier
	image   ImageClassifier
	metrics *observability.Metrics
}

// New builds the combined classifier. A nil image classifier allows every image.
func New(text *TextClassifier, image ImageClassifier, metrics *observability.Metrics) *Classifier {
	if text == nil {
		text = NewTextClassifier(DefaultLists())
	}
	if image == nil {
		image = AllowAll{}
	}
	return &Classifier{text: text, image: image, metrics: metrics}
}

// ClassifyText applies the local text rules.
func (c *Classifier) ClassifyText(text string) domain.Verdict {
	return c.text.ClassifyText(text)
}

// ClassifyImage forwards to the provider and records its latency.
func (c *Classifier) ClassifyImage(ctx context.Context, image []byte, contentType string) (domain.Verdict, error) {
	start := time.Now()
	verdict, err := c.image.ClassifyImage(ctx, image, contentType)
	c.metrics.RecordClassification(c.image.Name(), time.Since(start))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%s image classifier: %w", c.image.Name(), err)
	}
	return verdict, nil
}

// CheckUsername validates a display name with the text rules.
func (c *Classifier) CheckUsername(name string) domain.Verdict {
	return c.text.CheckUsername(name)
}

// ImageProvider names the active image provider.
func (c *Classifier) ImageProvider() string {
	return c.image.Name()
}

// NewImageClassifier builds the provider selected in config.
func NewImageClassifier(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (ImageClassifier, error) {
	switch cfg.ImageProvider {
	case ProviderVision:
		return NewVisionClassifier(ctx)
	case ProviderHive:
		if cfg.HiveAPIToken == "" {
			return nil, errors.New("HIVE_API_TOKEN is required for the hive image provider")
		}
		opts := httpclient.DefaultOptions()
		opts.RetryMax = 2
		opts.Timeout = cfg.Timeout
		client := httpclient.New(logger.Named("hive"), opts)
		return NewHiveClassifier(client, cfg.HiveEndpoint, cfg.HiveAPIToken), nil
	case "", ProviderNone:
		logger.Warn("image classification disabled; every image will be accepted")
		return AllowAll{}, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}
}

// AllowAll accepts every image.
type AllowAll struct{}

// Name reports the provider as none.
func (AllowAll) Name() string { return ProviderNone }

// ClassifyImage returns a safe verdict.
func (AllowAll) ClassifyImage(context.Context, []byte, string) (domain.Verdict, error) {
	return domain.SafeVerdict(), nil
}
