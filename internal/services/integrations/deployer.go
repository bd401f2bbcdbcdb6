package integrations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"SOCPulse/internal/domain/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnknownProvider is returned for an unsupported cloud provider name.
var ErrUnknownProvider = errors.New("unknown cloud provider")

const deployedModelID = "incident-analysis-model"

// AWSConfig configures artifact upload for SageMaker hosting.
type AWSConfig struct {
	Region          string `yaml:"region" default:"us-east-1"`
	Bucket          string `yaml:"bucket" default:"socpulse-models"`
	Prefix          string `yaml:"prefix" default:"models/"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Deployer uploads the model artifact to S3, where SageMaker picks it up.
type S3Deployer struct {
	cfg    AWSConfig
	client objectPutter
}

// NewS3Deployer loads the default AWS credential chain, overridden by
// static keys when both are set.
func NewS3Deployer(ctx context.Context, cfg AWSConfig) (*S3Deployer, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Deployer{cfg: cfg, client: client}, nil
}

func (d *S3Deployer) Provider() string { return "aws" }

func (d *S3Deployer) Deploy(ctx context.Context, modelKey string, artifact []byte) (service.Deployment, error) {
	if len(artifact) == 0 {
		return service.Deployment{}, errors.New("empty model artifact")
	}
	key := d.cfg.Prefix + strings.ReplaceAll(modelKey, "/", "-") + ".json"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(artifact),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return service.Deployment{}, fmt.Errorf("upload artifact: %w", err)
	}
	return service.Deployment{
		Provider:    "aws",
		EndpointURL: fmt.Sprintf("https://sagemaker.%s.amazonaws.com/endpoints/incident-analysis", d.cfg.Region),
		ModelID:     deployedModelID,
		Location:    fmt.Sprintf("s3://%s/%s", d.cfg.Bucket, key),
		Status:      "deployed",
	}, nil
}

// StubDeployer reports a fixed endpoint without contacting the provider.
type StubDeployer struct {
	provider string
	endpoint string
}

func NewStubDeployer(provider string) (*StubDeployer, error) {
	switch provider {
	case "gcp":
		return &StubDeployer{provider: provider, endpoint: "https://us-central1-aiplatform.googleapis.com/v1/projects/project-id/locations/us-central1/endpoints/endpoint-id"}, nil
	case "azure":
		return &StubDeployer{provider: provider, endpoint: "https://eastus2.api.azureml.ms/subscriptions/sub-id/resourceGroups/rg/providers/Microsoft.MachineLearningServices/workspaces/ws/endpoints/incident-analysis"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

func (d *StubDeployer) Provider() string { return d.provider }

func (d *StubDeployer) Deploy(_ context.Context, _ string, artifact []byte) (service.Deployment, error) {
	if len(artifact) == 0 {
		return service.Deployment{}, errors.New("empty model artifact")
	}
	return service.Deployment{
		Provider:    d.provider,
		EndpointURL: d.endpoint,
		ModelID:     deployedModelID,
		Status:      "deployed",
	}, nil
}
