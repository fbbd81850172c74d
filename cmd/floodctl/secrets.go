package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/spf13/cobra"
)

// SSMClient is the subset of the SSM API used to seed secrets.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// newSSMClient is replaced in tests.
var newSSMClient = func(ctx context.Context, region string) (SSMClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return ssm.NewFromConfig(cfg), nil
}

const ssmOperationTimeout = 15 * time.Second

// secret is one SecureString the services resolve at startup through a
// <ENV_VAR>_SSM_PARAM pointer.
type secret struct {
	EnvVar string
	Key    string
}

var secretInventory = []secret{
	{EnvVar: "DATABASE_URL", Key: "database/url"},
	{EnvVar: "OPENTOPOGRAPHY_API_KEY", Key: "opentopography/api_key"},
}

var validEnvironments = map[string]bool{"dev": true, "staging": true, "prod": true}

// secretPath is /{env}/floodfactor/{key}.
func secretPath(env, key string) string {
	return fmt.Sprintf("/%s/floodfactor/%s", env, key)
}

// secretWriter seeds SSM parameters without ever logging their values.
type secretWriter struct {
	client SSMClient
	logger *slog.Logger
}

func (w *secretWriter) exists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := w.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

func (w *secretWriter) put(ctx context.Context, path, value string, overwrite bool) error {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := w.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}
	w.logger.InfoContext(ctx, "SSM parameter written", "path", path, "value_length", len(value))
	return nil
}

func newSecretsCmd(c *cli) *cobra.Command {
	var env, region string

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the SSM secrets the services resolve at startup",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if !validEnvironments[env] {
				return fmt.Errorf("invalid --env %q (must be dev, staging, or prod)", env)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&env, "env", "", "target environment (dev, staging, prod)")
	cmd.PersistentFlags().StringVar(&region, "region", "us-east-1", "AWS region")

	var overwrite bool
	put := &cobra.Command{
		Use:   "put",
		Short: "Copy secrets from the environment into SSM",
		Long: `Put writes every known secret that is set in the local environment
(DATABASE_URL, OPENTOPOGRAPHY_API_KEY) to SSM as a SecureString. Existing
parameters are left alone unless --overwrite is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := newSSMClient(ctx, region)
			if err != nil {
				return err
			}
			w := &secretWriter{client: client, logger: c.logger}

			written := 0
			for _, s := range secretInventory {
				value := os.Getenv(s.EnvVar)
				path := secretPath(env, s.Key)
				if value == "" {
					c.logger.WarnContext(ctx, "secret not set locally; skipping", "env_var", s.EnvVar)
					continue
				}
				if !overwrite {
					found, err := w.exists(ctx, path)
					if err != nil {
						return err
					}
					if found {
						c.logger.InfoContext(ctx, "SSM parameter exists; skipping", "path", path)
						continue
					}
				}
				if err := w.put(ctx, path, value, overwrite); err != nil {
					return err
				}
				written++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d secret(s) written\n", written)
			return nil
		},
	}
	put.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing parameters")

	pointers := &cobra.Command{
		Use:   "pointers",
		Short: "Print the _SSM_PARAM variables for a deployment",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range secretInventory {
				fmt.Fprintf(cmd.OutOrStdout(), "%s_SSM_PARAM=%s\n", s.EnvVar, secretPath(env, s.Key))
			}
		},
	}

	cmd.AddCommand(put, pointers)
	return cmd
}
