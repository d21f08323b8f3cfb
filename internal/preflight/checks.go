package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"prdforge/internal/config"
	"prdforge/internal/services/gemini"
	"prdforge/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries). Mock mode
// always passes.
func CheckLLM(ctx context.Context, cfg config.LLMConfig) Result {
	name := "LLM"
	if cfg.Provider != "" {
		name = fmt.Sprintf("LLM (%s)", cfg.Provider)
	}
	if cfg.Mock {
		return Result{Name: name, Passed: true, Detail: "mock mode"}
	}
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error
	if cfg.Provider == config.ProviderGemini {
		_, err = gemini.New(cfg.APIKey, cfg.Model).Complete(checkCtx, llm.Prompt{User: "Reply with OK."})
	} else {
		client := llm.NewClient(llm.Config{
			Provider: cfg.Provider,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
		}, llm.WithRetryMaxAttempts(1))
		err = client.HealthCheck(checkCtx)
	}
	if err != nil {
		return Result{Name: name, Detail: summarizeError("LLM API", err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckAliyun verifies that the credentials, app key, and bucket used by the
// speech and storage services are configured. It does not contact Aliyun.
func CheckAliyun(cfg *config.Config) Result {
	const name = "Aliyun"

	var missing []string
	if strings.TrimSpace(cfg.Aliyun.AccessKeyID) == "" || strings.TrimSpace(cfg.Aliyun.AccessKeySecret) == "" {
		missing = append(missing, "access key")
	}
	if strings.TrimSpace(cfg.Aliyun.AppKey) == "" {
		missing = append(missing, "app key")
	}
	if strings.TrimSpace(cfg.OSS.Bucket) == "" {
		missing = append(missing, "oss bucket")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("configured (bucket %s)", cfg.OSS.Bucket)}
}

// CheckRedis pings the summary state server.
func CheckRedis(ctx context.Context, addr string) Result {
	const name = "Redis"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", addr, summarizeError("Redis", err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
}

// CheckBinary verifies that command resolves on PATH (or as a path).
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(target string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("health check timed out (%s unresponsive)", target)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("health check timed out (%s unreachable)", target)
	}
	return err.Error()
}
