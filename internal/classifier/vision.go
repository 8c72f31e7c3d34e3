package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// VisionClassifier runs Cloud Vision SAFE_SEARCH_DETECTION on inline image bytes.
type VisionClassifier struct {
	svc *vision.Service
}

// NewVisionClassifier uses Application Default Credentials unless options are given.
func NewVisionClassifier(ctx context.Context, opts ...option.ClientOption) (*VisionClassifier, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(vision.CloudPlatformScope)}
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return &VisionClassifier{svc: svc}, nil
}

// Name reports the provider.
func (v *VisionClassifier) Name() string { return ProviderVision }

// ClassifyImage runs SafeSearch detection on the image.
func (v *VisionClassifier) ClassifyImage(ctx context.Context, image []byte, _ string) (domain.Verdict, error) {
	req := &vision.AnnotateImageRequest{
		Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []*vision.Feature{
			{Type: "SAFE_SEARCH_DETECTION"},
		},
	}

	call := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	})
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return domain.Verdict{}, err
	}
	if len(resp.Responses) == 0 {
		return domain.Verdict{}, errors.New("vision returned no annotations")
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return domain.Verdict{}, fmt.Errorf("vision annotate: %s", r.Error.Message)
	}
	return safeSearchVerdict(r.SafeSearchAnnotation), nil
}

func likelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func safeSearchVerdict(ss *vision.SafeSearchAnnotation) domain.Verdict {
	if ss == nil {
		return domain.SafeVerdict()
	}
	switch {
	case likelyOrHigher(ss.Adult) || likelyOrHigher(ss.Racy):
		return domain.UnsafeVerdict(domain.CategoryAdult)
	case likelyOrHigher(ss.Violence):
		return domain.UnsafeVerdict(domain.CategoryUnsafeImage)
	default:
		return domain.SafeVerdict()
	}
}
