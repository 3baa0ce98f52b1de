package cloud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/stackctl/internal/config"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	c := NewFromAPI(fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
		UserId:  aws.String("AIDAEXAMPLE"),
	}}, "us-east-1")

	id, err := c.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", id.Account)
	assert.Equal(t, "arn:aws:iam::123456789012:user/ops", id.ARN)
	assert.Equal(t, "us-east-1", c.Region())
}

func TestIdentityErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"expired", &smithy.GenericAPIError{Code: "ExpiredToken", Message: "expired"}, "credentials expired"},
		{"invalid", &smithy.GenericAPIError{Code: "InvalidClientTokenId"}, "credentials are invalid"},
		{"denied", &smithy.GenericAPIError{Code: "AccessDenied"}, "access denied"},
		{"other api", &smithy.GenericAPIError{Code: "Throttling"}, "Throttling"},
		{"no credentials", assert.AnError, "credentials could not be resolved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFromAPI(fakeSTS{err: tt.err}, "us-east-1").Identity(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestIdentityOverHTTP(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "GetCallerIdentity", r.Form.Get("Action"))
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<GetCallerIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <GetCallerIdentityResult>
    <Arn>arn:aws:iam::210987654321:role/deployer</Arn>
    <UserId>AROAEXAMPLE:session</UserId>
    <Account>210987654321</Account>
  </GetCallerIdentityResult>
  <ResponseMetadata><RequestId>c0ffee</RequestId></ResponseMetadata>
</GetCallerIdentityResponse>`))
	}))
	t.Cleanup(server.Close)

	api := sts.New(sts.Options{
		Region:       "eu-west-1",
		BaseEndpoint: aws.String(server.URL),
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
	})
	id, err := NewFromAPI(api, "eu-west-1").Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "210987654321", id.Account)
}

func TestCommands(t *testing.T) {
	t.Parallel()

	rc := config.Defaults()
	rc.ProjectRoot = "/work"
	rc.Kubeconfig = ".kube/config"

	assert.Equal(t, "aws eks update-kubeconfig --name stackctl-eks --region us-east-1 --kubeconfig /work/.kube/config", UpdateKubeconfig(rc).String())
	login := ECRLoginPassword(rc)
	assert.True(t, login.Quiet)
	assert.Equal(t, "aws ecr get-login-password --region us-east-1", login.String())
	assert.Contains(t, DescribeCluster(rc), "describe-cluster --name stackctl-eks")
	assert.Equal(t, "aws ecr describe-repositories --region us-east-1", DescribeRepositories(rc))
}

func TestNewClientWithDefaultsAndEnvCredentials(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(home, "missing-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(home, "missing-credentials"))
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	for _, name := range []string{"AWS_PROFILE", "AWS_DEFAULT_PROFILE"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}

	rc := config.Defaults()
	require.Empty(t, rc.Profile)
	assert.NotContains(t, rc.AWSEnv(), "AWS_PROFILE")

	client, err := NewClient(context.Background(), rc.Region, rc.Profile)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", client.Region())

	_, err = NewClient(context.Background(), rc.Region, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load AWS config")
}

func TestRegistryHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123.dkr.ecr.us-east-1.amazonaws.com", RegistryHost("123.dkr.ecr.us-east-1.amazonaws.com/app"))
	assert.Equal(t, "123.dkr.ecr.us-east-1.amazonaws.com", RegistryHost("https://123.dkr.ecr.us-east-1.amazonaws.com/team/app"))
	assert.Equal(t, "registry.local", RegistryHost("registry.local"))
}
