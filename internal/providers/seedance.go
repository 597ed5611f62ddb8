package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/core/services"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/poller"
)

func init() {
	Register("doubao", func(cfg config.ProviderConfig, client *httpclient.Client) VideoProvider {
		return NewSeedance(cfg, client)
	})
}

// Seedance drives the Ark content-generation task API used by the
// seedance and doubao video models.
type Seedance struct {
	cfg    config.ProviderConfig
	client *httpclient.Client
}

func NewSeedance(cfg config.ProviderConfig, client *httpclient.Client) *Seedance {
	return &Seedance{cfg: cfg, client: client}
}

func (p *Seedance) Name() string {
	return "doubao"
}

func (p *Seedance) baseURL(route *services.Route) string {
	if route.BaseURL != "" {
		return strings.TrimSuffix(route.BaseURL, "/")
	}
	return strings.TrimSuffix(p.cfg.BaseURL, "/")
}

func (p *Seedance) headers(route *services.Route) map[string]string {
	return map[string]string{"Authorization": "Bearer " + route.APIKey}
}

type seedanceContent struct {
	Type     string             `json:"type"`
	Text     string             `json:"text,omitempty"`
	ImageURL *seedanceImagePart `json:"image_url,omitempty"`
}

type seedanceImagePart struct {
	URL string `json:"url"`
}

type seedanceSubmitRequest struct {
	Model   string            `json:"model"`
	Content []seedanceContent `json:"content"`
}

type seedanceSubmitResponse struct {
	ID string `json:"id"`
}

func (p *Seedance) Submit(ctx context.Context, route *services.Route, req *GenerationRequest) (string, error) {
	content := []seedanceContent{{Type: "text", Text: req.Prompt}}
	if req.ImageURL != "" {
		content = append(content, seedanceContent{
			Type:     "image_url",
			ImageURL: &seedanceImagePart{URL: req.ImageURL},
		})
	}

	var resp seedanceSubmitResponse
	url := p.baseURL(route) + "/contents/generations/tasks"
	body := seedanceSubmitRequest{Model: route.TargetModel, Content: content}
	if err := p.client.SendRequest(ctx, http.MethodPost, url, p.headers(route), body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("seedance submission returned no task id")
	}
	return resp.ID, nil
}

type seedancePollResponse struct {
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
}

func (p *Seedance) Poll(ctx context.Context, route *services.Route, upstreamID string) (*poller.Snapshot, error) {
	url := fmt.Sprintf("%s/contents/generations/tasks/%s", p.baseURL(route), upstreamID)

	var resp seedancePollResponse
	raw, err := p.client.SendRequestRaw(ctx, http.MethodGet, url, p.headers(route), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &poller.Snapshot{State: resp.Status, Payload: raw}, nil
}
