package preflight

import (
	"context"
	"strings"

	"prdforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckBinary("FFmpeg", cfg.Segmenter.FFmpegBinary),
		CheckBinary("FFprobe", cfg.Segmenter.FFprobeBinary),
		CheckLLM(ctx, cfg.ResolveLLM()),
		CheckAliyun(cfg),
	}

	if strings.TrimSpace(cfg.Summary.RedisAddr) != "" {
		results = append(results, CheckRedis(ctx, cfg.Summary.RedisAddr))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
