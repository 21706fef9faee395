package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const ImageToolName = "generate_image"

var aspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// ImageClient calls the image-generation microservice.
type ImageClient struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

func NewImageClient(baseURL string, timeout time.Duration) *ImageClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ImageClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

type imageReq struct {
	Prompt  string       `json:"prompt"`
	Options imageOptions `json:"options"`
}

type imageOptions struct {
	AspectRatio string `json:"aspectRatio"`
}

type imageResp struct {
	Success   bool   `json:"success"`
	ImageData string `json:"imageData,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Generate returns the image as a data URL.
func (c *ImageClient) Generate(ctx context.Context, prompt, aspectRatio string) (string, error) {
	if c.Client == nil {
		return "", errors.New("imagegen: http client is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	b, err := json.Marshal(imageReq{Prompt: prompt, Options: imageOptions{AspectRatio: aspectRatio}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generate", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: %w", err)
	}
	defer resp.Body.Close()

	var decoded imageResp
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		msg = truncateRunes(msg, 300)
		return "", fmt.Errorf("imagegen: status %d: %s", resp.StatusCode, msg)
	}
	if !decoded.Success {
		if decoded.Error == "" {
			decoded.Error = "generation failed"
		}
		return "", fmt.Errorf("imagegen: %s", decoded.Error)
	}
	if decoded.ImageData == "" {
		return "", errors.New("imagegen: empty image")
	}
	return dataURL(decoded.ImageData), nil
}

func dataURL(data string) string {
	if strings.HasPrefix(data, "data:") {
		return data
	}
	return "data:image/png;base64," + data
}

// ImageTool exposes ImageClient to the model as generate_image.
type ImageTool struct {
	client *ImageClient
}

func NewImageTool(c *ImageClient) *ImageTool { return &ImageTool{client: c} }

func (t *ImageTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ImageToolName,
		Description: "Generate an educational image, diagram or illustration from a text description.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"prompt": {
					Type:        genai.TypeString,
					Description: "Detailed description of the image to create.",
				},
				"aspectRatio": {
					Type:        genai.TypeString,
					Description: "Image aspect ratio.",
					Enum:        aspectRatios,
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// Invoke keeps the image bytes out of the text: Text carries only the
// caption and prompt, the picture travels as an inline part.
func (t *ImageTool) Invoke(ctx context.Context, args map[string]any) (ToolOutput, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return ToolOutput{}, errors.New("imagegen: prompt is required")
	}
	img, err := t.client.Generate(ctx, prompt, aspectRatioArg(args))
	if err != nil {
		return ToolOutput{}, err
	}
	mimeType, data, err := decodeDataURL(img)
	if err != nil {
		return ToolOutput{}, err
	}
	return ToolOutput{
		Text:     fmt.Sprintf("Here is the image I generated for you.\n\n*Prompt: %s*", prompt),
		Markdown: fmt.Sprintf("Here is the image I generated for you:\n\n![%s](%s)\n\n*Prompt: %s*", altText(prompt), img, prompt),
		Media:    []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}},
	}, nil
}

func decodeDataURL(u string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, errors.New("imagegen: image is not a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("imagegen: decode image: %w", err)
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, data, nil
}

func (t *ImageTool) Explain(args map[string]any, err error) string {
	var b strings.Builder
	b.WriteString("I tried to create an image for you")
	if p := stringArg(args, "prompt"); p != "" {
		fmt.Fprintf(&b, " (%q)", p)
	}
	b.WriteString(", but the image generator couldn't produce it")

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "billing"):
		b.WriteString(": the image service reported a billing problem.")
	case strings.Contains(lower, "quota"), strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		b.WriteString(": the image service has reached its usage quota.")
	case strings.Contains(lower, "policy"), strings.Contains(lower, "safety"), strings.Contains(lower, "blocked"):
		b.WriteString(": the request was blocked by the image service's content policy.")
	case errors.Is(err, context.DeadlineExceeded):
		b.WriteString(": the image service took too long to respond.")
	default:
		b.WriteString(".")
	}
	b.WriteString(" This is most often caused by billing or quota limits on the image service, or by a content-policy restriction. I'm happy to describe or sketch the idea in words instead.")
	return b.String()
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func aspectRatioArg(args map[string]any) string {
	v := stringArg(args, "aspectRatio")
	for _, r := range aspectRatios {
		if v == r {
			return v
		}
	}
	return "1:1"
}

func altText(prompt string) string {
	return truncateRunes(strings.NewReplacer("[", "", "]", "", "\n", " ").Replace(prompt), 80)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
