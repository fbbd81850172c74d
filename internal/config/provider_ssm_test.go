package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSMClient struct {
	values  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, append([]string(nil), in.Names...))
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		v, ok := f.values[name]
		if !ok {
			out.InvalidParameters = append(out.InvalidParameters, name)
			continue
		}
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
	}
	return out, nil
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = NewSSMProvider("us-east-1")
}

func TestSSMProviderBatchesByTen(t *testing.T) {
	values := make(map[string]string)
	var keys []string
	for i := 0; i < 23; i++ {
		k := "/prod/floodfactor/key" + strings.Repeat("x", i)
		keys = append(keys, k)
		values[k] = "v"
	}
	client := &fakeSSMClient{values: values}
	p := newSSMProviderWithClient("us-east-1", client)

	result, err := p.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 23 {
		t.Errorf("resolved %d keys, want 23", len(result))
	}
	if len(client.batches) != 3 {
		t.Fatalf("made %d calls, want 3", len(client.batches))
	}
	if len(client.batches[2]) != 3 {
		t.Errorf("last batch size = %d, want 3", len(client.batches[2]))
	}
}

func TestSSMProviderInvalidParameter(t *testing.T) {
	client := &fakeSSMClient{values: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("us-east-1", client)

	_, err := p.GetParametersBatch(context.Background(), []string{"/a", "/missing"})
	if err == nil || !strings.Contains(err.Error(), "/missing") {
		t.Fatalf("expected not-found error naming /missing, got %v", err)
	}
}

func TestSSMProviderClientError(t *testing.T) {
	client := &fakeSSMClient{err: errors.New("throttled")}
	p := newSSMProviderWithClient("us-east-1", client)

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	p := NewSSMProvider("us-east-1")
	result, err := p.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || len(result) != 0 {
		t.Errorf("expected empty map, got %v", result)
	}
	if p.client != nil {
		t.Error("client should not be created for an empty batch")
	}
}

func TestSSMProviderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeSSMClient{values: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("us-east-1", client)
	if _, err := p.GetParametersBatch(ctx, []string{"/a"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(client.batches) != 0 {
		t.Error("no SSM call should be made after cancellation")
	}
}
