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
	Register("vidu", func(cfg config.ProviderConfig, client *httpclient.Client) VideoProvider {
		return NewVidu(cfg, client)
	})
}

// Vidu drives the Vidu text-to-video and image-to-video endpoints. A
// submission returns a task id that is polled via the creations list.
type Vidu struct {
	cfg    config.ProviderConfig
	client *httpclient.Client
}

func NewVidu(cfg config.ProviderConfig, client *httpclient.Client) *Vidu {
	return &Vidu{cfg: cfg, client: client}
}

func (p *Vidu) Name() string {
	return "vidu"
}

func (p *Vidu) baseURL(route *services.Route) string {
	if route.BaseURL != "" {
		return strings.TrimSuffix(route.BaseURL, "/")
	}
	return strings.TrimSuffix(p.cfg.BaseURL, "/")
}

func (p *Vidu) headers(route *services.Route) map[string]string {
	return map[string]string{"Authorization": "Token " + route.APIKey}
}

type viduSubmitRequest struct {
	Model    string   `json:"model"`
	Prompt   string   `json:"prompt"`
	Images   []string `json:"images,omitempty"`
	Duration int      `json:"duration,omitempty"`
}

type viduSubmitResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

func (p *Vidu) Submit(ctx context.Context, route *services.Route, req *GenerationRequest) (string, error) {
	endpoint := "/text2video"
	body := viduSubmitRequest{
		Model:    route.TargetModel,
		Prompt:   req.Prompt,
		Duration: req.Duration,
	}
	if req.ImageURL != "" {
		endpoint = "/img2video"
		body.Images = []string{req.ImageURL}
	}

	var resp viduSubmitResponse
	url := p.baseURL(route) + endpoint
	if err := p.client.SendRequest(ctx, http.MethodPost, url, p.headers(route), body, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("vidu submission returned no task id")
	}
	return resp.TaskID, nil
}

type viduPollResponse struct {
	State     string `json:"state"`
	ErrCode   string `json:"err_code"`
	Creations []struct {
		URL string `json:"url"`
	} `json:"creations"`
}

func (p *Vidu) Poll(ctx context.Context, route *services.Route, upstreamID string) (*poller.Snapshot, error) {
	url := fmt.Sprintf("%s/tasks/%s/creations", p.baseURL(route), upstreamID)

	var resp viduPollResponse
	raw, err := p.client.SendRequestRaw(ctx, http.MethodGet, url, p.headers(route), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &poller.Snapshot{State: resp.State, Payload: raw}, nil
}
