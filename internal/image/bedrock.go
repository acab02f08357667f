package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockInvoker is the slice of the Bedrock runtime API we use.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig holds Bedrock image generation settings.
type BedrockConfig struct {
	Region string
	// ModelID is a Stability model on Bedrock, e.g.
	// stability.sd3-5-large-v1:0.
	ModelID string
	// OutputFormat is png or jpeg.
	OutputFormat string
	AspectRatio  string
}

// BedrockClient implements Generator on AWS Bedrock's InvokeModel API
// with a Stable Diffusion 3 model.
type BedrockClient struct {
	cfg    BedrockConfig
	client bedrockInvoker
}

// NewBedrockClient creates a Bedrock image client using the ambient
// AWS credential chain.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("bedrock requires a model id")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return newBedrockClient(cfg, bedrockruntime.NewFromConfig(awsCfg)), nil
}

func newBedrockClient(cfg BedrockConfig, client bedrockInvoker) *BedrockClient {
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "png"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "1:1"
	}
	return &BedrockClient{cfg: cfg, client: client}
}

type sd3Request struct {
	Prompt       string `json:"prompt"`
	Mode         string `json:"mode"`
	AspectRatio  string `json:"aspect_ratio"`
	OutputFormat string `json:"output_format"`
}

type sd3Response struct {
	Images        []string `json:"images"`
	FinishReasons []string `json:"finish_reasons"`
}

// Generate implements Generator
func (c *BedrockClient) Generate(ctx context.Context, prompt string) (*Artifact, error) {
	body, err := json.Marshal(sd3Request{
		Prompt:       prompt,
		Mode:         "text-to-image",
		AspectRatio:  c.cfg.AspectRatio,
		OutputFormat: c.cfg.OutputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding bedrock request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.cfg.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke: %w", err)
	}

	var res sd3Response
	if err := json.Unmarshal(out.Body, &res); err != nil {
		return nil, fmt.Errorf("decoding bedrock response: %w", err)
	}
	if len(res.FinishReasons) > 0 && res.FinishReasons[0] != "" {
		return nil, fmt.Errorf("bedrock generation filtered: %s", res.FinishReasons[0])
	}
	if len(res.Images) == 0 {
		return nil, fmt.Errorf("bedrock returned no images")
	}

	data, err := base64.StdEncoding.DecodeString(res.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decoding bedrock image: %w", err)
	}
	return &Artifact{
		Data:     data,
		MimeType: "image/" + c.cfg.OutputFormat,
		Ext:      extForFormat(c.cfg.OutputFormat),
	}, nil
}
