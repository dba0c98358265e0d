package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const parameterStoreTimeout = 5 * time.Second

// ParameterStore is the subset of the SSM client used to resolve the feed URL.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewParameterStore builds an SSM client from the default AWS credential chain.
func NewParameterStore(ctx context.Context) (ParameterStore, error) {
	ctx, cancel := context.WithTimeout(ctx, parameterStoreTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// ResolveURL returns the feed location. In prod, when URLParameter is set,
// the value is read (decrypted) from Parameter Store; otherwise URL is used.
func (cfg *FeedConfig) ResolveURL(ctx context.Context, env string, store ParameterStore) (string, error) {
	if env != "prod" || cfg.URLParameter == "" {
		if cfg.URL == "" {
			return "", errors.New("feed url is not configured")
		}
		return cfg.URL, nil
	}
	if store == nil {
		return "", errors.New("parameter store client is required in prod")
	}

	ctx, cancel := context.WithTimeout(ctx, parameterStoreTimeout)
	defer cancel()

	result, err := store.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.URLParameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", cfg.URLParameter, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return "", fmt.Errorf("parameter %s has no value", cfg.URLParameter)
	}
	return *result.Parameter.Value, nil
}
