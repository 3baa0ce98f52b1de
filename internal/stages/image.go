package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/codex-k8s/stackctl/internal/cloud"
	"github.com/codex-k8s/stackctl/internal/image"
	"github.com/codex-k8s/stackctl/internal/pipeline"
)

// resolveImage reads the registry URL from terraform and records the registry and image reference.
func resolveImage(ctx context.Context, sc *pipeline.StageContext) (image.Ref, error) {
	rc := sc.Config
	tf := terraform(rc)
	registry, err := sc.Output(ctx, tf.Output(rc.Registry.Output))
	if err != nil {
		return image.Ref{}, pipeline.WithRemediation(
			fmt.Errorf("read registry from terraform output %s: %w", rc.Registry.Output, err),
			tf.Output(rc.Registry.Output).String(),
		)
	}
	ref, err := image.NewRef(registry, rc.Image.Tag)
	if err != nil {
		return image.Ref{}, err
	}
	sc.Values.Set(ValueRegistry, ref.Repository)
	sc.Values.Set(ValueImage, ref.String())
	return ref, nil
}

func buildImageStage(opts Options) pipeline.Stage {
	return pipeline.Stage{
		ID:          IDBuildImage,
		Description: "build the application image",
		Policy:      pipeline.PolicyHard,
		Idempotency: "docker build is repeatable; layers are cached",
		Remediation: "docker info",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			ref, err := resolveImage(ctx, sc)
			if err != nil {
				return err
			}
			if opts.SkipBuild {
				return pipeline.Skip("reusing " + ref.String())
			}
			cmd, err := image.Build(sc.Config, ref)
			if err != nil {
				return err
			}
			_, err = sc.Exec(ctx, cmd)
			return pipeline.WithRemediation(err, cmd.String())
		},
	}
}

func pushImageStage(opts Options) pipeline.Stage {
	return pipeline.Stage{
		ID:          IDPushImage,
		Description: "log in to the registry and push the image",
		Policy:      pipeline.PolicyHard,
		Idempotency: "the tag is mutable: re-pushing overwrites it, nothing is appended",
		Remediation: "docker info",
		Forward: func(ctx context.Context, sc *pipeline.StageContext) error {
			if opts.SkipBuild {
				return pipeline.Skip("image build skipped")
			}
			repo, ok := sc.Values.Get(ValueRegistry)
			if !ok {
				return errors.New("registry repository unknown: build-image did not run")
			}
			ref, err := image.NewRef(repo, sc.Config.Image.Tag)
			if err != nil {
				return err
			}

			describe := cloud.DescribeRepositories(sc.Config)
			password, err := sc.Output(ctx, cloud.ECRLoginPassword(sc.Config))
			if err != nil {
				return pipeline.WithRemediation(fmt.Errorf("fetch registry token: %w", err), describe)
			}
			if _, err := sc.Exec(ctx, image.Login(cloud.RegistryHost(ref.Repository), password)); err != nil {
				return pipeline.WithRemediation(fmt.Errorf("registry login: %w", err), describe)
			}
			_, err = sc.Exec(ctx, image.Push(ref))
			return pipeline.WithRemediation(err, image.Push(ref).String())
		},
	}
}
