// Package cloud talks to AWS: it resolves the caller identity through STS and
// builds the aws CLI invocations the pipelines run.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity is the principal the credentials resolve to.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// Client wraps the STS client for one region and profile.
type Client struct {
	sts    STSAPI
	region string
}

// NewClient loads the default AWS config chain for region and profile.
// An empty profile keeps the SDK default resolution.
func NewClient(ctx context.Context, region, profile string) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Client{sts: sts.NewFromConfig(cfg), region: region}, nil
}

// NewFromAPI wraps an existing STS implementation.
func NewFromAPI(api STSAPI, region string) *Client {
	return &Client{sts: api, region: region}
}

// Region returns the configured region.
func (c *Client) Region() string { return c.region }

// Identity calls sts:GetCallerIdentity. It has no side effects and works with
// any valid credentials, which makes it the credential check.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("resolve AWS identity: %s: %w", DescribeError(err), err)
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// DescribeError turns an AWS API error into an operator-facing hint.
func DescribeError(err error) string {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return "credentials could not be resolved"
	}
	switch apiErr.ErrorCode() {
	case "ExpiredToken", "ExpiredTokenException", "RequestExpired":
		return "credentials expired, refresh the session"
	case "InvalidClientTokenId", "UnrecognizedClientException", "SignatureDoesNotMatch":
		return "credentials are invalid"
	case "AccessDenied", "AccessDeniedException":
		return "access denied"
	default:
		return apiErr.ErrorCode()
	}
}
