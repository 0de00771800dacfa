package model

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
)

// InvokeEndpointAPI is the subset of the SageMaker runtime client used here.
type InvokeEndpointAPI interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// SageMakerReconstructor invokes a reconstruction model hosted on a SageMaker endpoint.
type SageMakerReconstructor struct {
	client   InvokeEndpointAPI
	endpoint string
}

// SageMakerConfig holds endpoint settings.
type SageMakerConfig struct {
	Endpoint string
	Region   string
}

// NewSageMakerReconstructor loads the default AWS configuration and builds a runtime client.
func NewSageMakerReconstructor(ctx context.Context, cfg SageMakerConfig) (*SageMakerReconstructor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sagemaker endpoint name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSageMakerReconstructorWithClient(sagemakerruntime.NewFromConfig(awsCfg), cfg.Endpoint), nil
}

// NewSageMakerReconstructorWithClient wires an existing runtime client.
func NewSageMakerReconstructorWithClient(client InvokeEndpointAPI, endpoint string) *SageMakerReconstructor {
	return &SageMakerReconstructor{client: client, endpoint: endpoint}
}

// Reconstruct sends the batch as JSON to the endpoint.
func (s *SageMakerReconstructor) Reconstruct(ctx context.Context, batch Batch) (Output, error) {
	body, err := encodeBatch(batch)
	if err != nil {
		return Output{}, err
	}
	resp, err := s.client.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(s.endpoint),
		Body:         body,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		return Output{}, fmt.Errorf("invoke endpoint %s: %w", s.endpoint, err)
	}
	out, err := decodeOutput(resp.Body)
	if err != nil {
		return Output{}, err
	}
	if err := CheckShape(batch, out); err != nil {
		return Output{}, err
	}
	return out, nil
}
