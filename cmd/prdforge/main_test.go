package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prdforge/internal/pipeline"
	"prdforge/internal/store"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "mock: yes")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second init err = %v", err)
	}
}

func TestProjectsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"projects", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("projects list: %v", err)
	}
	requireContains(t, out, "No projects")

	ctx := context.Background()
	project, err := env.store.CreateProject(ctx, store.NewProject{Title: "周会记录", RawText: "讨论导出功能"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := env.store.CreateMiniSummary(ctx, project.ID, 130, "确认导出格式"); err != nil {
		t.Fatalf("CreateMiniSummary: %v", err)
	}

	out, _, err = runCLI(t, []string{"projects", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("projects list: %v", err)
	}
	requireContains(t, out, project.ID)
	requireContains(t, out, "周会记录")
	requireContains(t, out, "Transcribed")

	out, _, err = runCLI(t, []string{"projects", "show", project.ID}, env.configPath)
	if err != nil {
		t.Fatalf("projects show: %v", err)
	}
	requireContains(t, out, "Transcript:")
	requireContains(t, out, "6 characters")
	requireContains(t, out, "2:10")
	requireContains(t, out, "确认导出格式")

	out, _, err = runCLI(t, []string{"projects", "show", "--json", project.ID}, env.configPath)
	if err != nil {
		t.Fatalf("projects show --json: %v", err)
	}
	var detail struct {
		ID        string `json:"id"`
		Summaries []struct {
			Timestamp int `json:"timestamp"`
		} `json:"summaries"`
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if detail.ID != project.ID || len(detail.Summaries) != 1 || detail.Summaries[0].Timestamp != 130 {
		t.Fatalf("detail = %+v", detail)
	}

	if _, _, err := runCLI(t, []string{"projects", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown project")
	}
}

func TestPRDCommandWritesMarkdown(t *testing.T) {
	env := setupCLITestEnv(t)
	project, err := env.store.CreateProject(context.Background(), store.NewProject{Title: "导出需求", RawText: "用户需要导出报表"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	target := filepath.Join(t.TempDir(), "prd.md")
	out, _, err := runCLI(t, []string{"prd", project.ID, "--out", target}, env.configPath)
	if err != nil {
		t.Fatalf("prd: %v", err)
	}
	requireContains(t, out, "Wrote PRD (version 2)")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read prd: %v", err)
	}
	if !strings.HasPrefix(string(data), "# 导出需求\n") {
		t.Fatalf("markdown = %q", data)
	}
	stored, err := env.store.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if stored.PRDContent != string(data) || stored.Status != store.StatusGenerated {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestPRDCommandWithoutSources(t *testing.T) {
	env := setupCLITestEnv(t)
	project, err := env.store.CreateProject(context.Background(), store.NewProject{Title: "空"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, _, err := runCLI(t, []string{"prd", project.ID}, env.configPath); err == nil {
		t.Fatal("expected error without summaries or transcript")
	}
}

func TestDoctorReportsFailedChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "checks failed") {
		t.Fatalf("doctor err = %v", err)
	}
	requireContains(t, out, "Data directory:")
	requireContains(t, out, "[OK]")
	requireContains(t, out, "[ERROR] missing access key, app key, oss bucket")
	requireContains(t, out, "mock mode")
}

func TestTranscribeRejectsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"transcribe", filepath.Join(t.TempDir(), "none.mp3")}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "inspect") {
		t.Fatalf("err = %v", err)
	}
}

func TestEventRendererPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := newEventRenderer(&buf)
	for _, ev := range []pipeline.Event{
		{Type: pipeline.EventStatus, Message: "正在切分音频..."},
		{Type: pipeline.EventSegmentsInfo, TotalSegments: 2},
		{Type: pipeline.EventSegmentStart, Index: 0, StartTime: 0, EndTime: 120},
		{Type: pipeline.EventSegmentProgress, Index: 0, Status: "RUNNING"},
		{Type: pipeline.EventSegmentComplete, Index: 0, Text: "第一段"},
		{Type: pipeline.EventSegmentSummary, Index: 0, Summary: "要点：第一段"},
		{Type: pipeline.EventSegmentError, Index: 1, Error: "poll timed out"},
		{Type: pipeline.EventComplete, Text: "第一段", SegmentResults: []pipeline.SegmentResult{{Index: 0}}},
	} {
		r.Render(ev)
	}

	want := strings.Join([]string{
		"· 正在切分音频...",
		"2 segments",
		"[1/2] 0:00-2:00 transcribing",
		"[1/2] running",
		"[1/2] 第一段",
		"[1/2] summary 要点：第一段",
		"[2/2] failed poll timed out",
		"done: 1 of 2 segments, 3 characters",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Fatalf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel(store.StatusGenerated); got != "Generated" {
		t.Fatalf("statusLabel = %q", got)
	}
}

func TestLogsCommandFiltersTail(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.LogDir, "prdforge.log")
	content := "INFO api server listening\nWARN segment failed\nINFO prd generated\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2", "--grep", "INFO"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "INFO prd generated\n" {
		t.Fatalf("output = %q", out)
	}
}
