package generation_runner

import (
	"context"

	"sd_db_storage/stable_diffusion_api"
)

type Runner interface {
	Generate(ctx context.Context, req *stable_diffusion_api.TextToImageRequest) (*GenerateResult, error)
	ImportDirectory(ctx context.Context, dir string) (*ImportResult, error)
}
