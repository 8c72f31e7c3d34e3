package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

// DefaultHiveEndpoint is the synchronous task API.
const DefaultHiveEndpoint = "https://api.thehive.ai/api/v2/task/sync"

// schema: https://docs.thehive.ai/reference/classification
type hiveResponse struct {
	Status []hiveStatus `json:"status"`
}

type hiveStatus struct {
	Response hiveOutputs `json:"response"`
}

type hiveOutputs struct {
	Output []hiveOutput `json:"output"`
}

type hiveOutput struct {
	Time    float64     `json:"time"`
	Classes []hiveClass `json:"classes"`
}

type hiveClass struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

var hiveAdultClasses = map[string]float64{
	"yes_sexual_activity": 0.9,
	"yes_realistic_nsfw":  0.9,
	"general_nsfw":        0.9,
	"yes_sexual_intent":   0.9,
	"yes_female_nudity":   0.9,
	"yes_male_nudity":     0.9,
	"yes_undressed":       0.9,
}

var hiveHarmClasses = map[string]float64{
	"very_bloody":   0.9,
	"human_corpse":  0.9,
	"hanging":       0.9,
	"yes_self_harm": 0.96,
}

// verdict folds every output frame into one decision; adult wins over harm.
func (r *hiveResponse) verdict() domain.Verdict {
	harm := false
	for _, status := range r.Status {
		for _, out := range status.Response.Output {
			for _, cls := range out.Classes {
				if threshold, ok := hiveAdultClasses[cls.Class]; ok && cls.Score >= threshold {
					return domain.UnsafeVerdict(domain.CategoryAdult)
				}
				if threshold, ok := hiveHarmClasses[cls.Class]; ok && cls.Score >= threshold {
					harm = true
				}
			}
		}
	}
	if harm {
		return domain.UnsafeVerdict(domain.CategoryUnsafeImage)
	}
	return domain.SafeVerdict()
}

// HiveClassifier uploads images to the Hive moderation API.
type HiveClassifier struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewHiveClassifier uses client for every request; nil means http.DefaultClient.
func NewHiveClassifier(client *http.Client, endpoint, token string) *HiveClassifier {
	if endpoint == "" {
		endpoint = DefaultHiveEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HiveClassifier{client: client, endpoint: endpoint, token: token}
}

// Name reports the provider.
func (h *HiveClassifier) Name() string { return ProviderHive }

// ClassifyImage uploads the image and summarizes the class scores.
func (h *HiveClassifier) ClassifyImage(ctx context.Context, image []byte, _ string) (domain.Verdict, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("media", "upload")
	if err != nil {
		return domain.Verdict{}, err
	}
	if _, err := part.Write(image); err != nil {
		return domain.Verdict{}, err
	}
	if err := writer.Close(); err != nil {
		return domain.Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return domain.Verdict{}, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token %s", h.token))
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("hive request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return domain.Verdict{}, fmt.Errorf("hive request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("read hive response: %w", err)
	}
	var parsed hiveResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode hive response: %w", err)
	}
	return parsed.verdict(), nil
}
