package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"prdforge/internal/logging"
	"prdforge/internal/pipeline"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/oss"
)

type tokenResponse struct {
	Token      string `json:"token"`
	ExpireTime int64  `json:"expireTime"`
	AppKey     string `json:"appKey"`
	WSURL      string `json:"wsUrl"`
	Region     string `json:"region"`
}

// handleAliyunToken hands the browser what it needs to talk to the speech
// gateway directly.
func (s *Server) handleAliyunToken(w http.ResponseWriter, r *http.Request) {
	appKey := strings.TrimSpace(s.cfg.Aliyun.AppKey)
	if appKey == "" {
		s.writeFailure(w, r, "failed to create token", services.Wrap(services.ErrConfiguration, "aliyun", "token", "app key not configured (ALIYUN_ASR_APP_KEY)", nil))
		return
	}
	token, err := s.components.Tokens.Token(r.Context())
	if err != nil {
		s.writeFailure(w, r, "failed to create token", err)
		return
	}
	region := s.cfg.Aliyun.ASRRegion
	s.writeJSON(w, http.StatusOK, tokenResponse{
		Token:      token.ID,
		ExpireTime: token.ExpireTime,
		AppKey:     appKey,
		WSURL:      aliyun.GatewayURL(region),
		Region:     region,
	})
}

type uploadResponse struct {
	URL        string `json:"url"`
	ObjectName string `json:"objectName"`
	FileName   string `json:"fileName"`
}

func (s *Server) handleAliyunUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.audioFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = oss.ContentTypeFor(ext)
	}
	projectID := strings.TrimSpace(r.FormValue("projectId"))
	object := oss.UploadObjectName(projectID, s.now().UnixMilli(), ext)
	uploaded, err := s.components.Objects.Upload(r.Context(), file, object, oss.UploadOptions{ContentType: contentType})
	if err != nil {
		s.writeFailure(w, r, "upload failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{URL: uploaded.URL, ObjectName: uploaded.ObjectName, FileName: header.Filename})
}

type submitTaskRequest struct {
	FileURL string `json:"fileUrl"`
}

func (s *Server) handleSubmitFileTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FileURL) == "" {
		s.writeError(w, http.StatusBadRequest, "fileUrl is required")
		return
	}
	taskID, err := s.components.FileTrans.Submit(r.Context(), req.FileURL)
	if err != nil {
		s.writeFailure(w, r, "failed to submit transcription task", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"taskId": taskID, "message": "识别任务已提交"})
}

func (s *Server) handleFileTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		s.writeError(w, http.StatusBadRequest, "taskId is required")
		return
	}
	s.writeTaskStatus(w, r, taskID)
}

func (s *Server) writeTaskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := s.components.FileTrans.Status(r.Context(), taskID)
	if err != nil {
		s.writeFailure(w, r, "failed to query transcription task", err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

type watchTaskRequest struct {
	TaskID        string `json:"taskId"`
	WaitForResult bool   `json:"waitForResult"`
}

func (s *Server) handleWatchFileTask(w http.ResponseWriter, r *http.Request) {
	var req watchTaskRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	taskID := strings.TrimSpace(req.TaskID)
	if taskID == "" {
		s.writeError(w, http.StatusBadRequest, "taskId is required")
		return
	}
	if !req.WaitForResult {
		s.writeTaskStatus(w, r, taskID)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	events := pipeline.WatchTask(ctx, s.components.FileTrans, taskID, filetrans.PollOptions{
		Interval: s.cfg.PollInterval(),
		Timeout:  s.cfg.PollTimeout(),
	})
	s.streamEvents(ctx, cancel, w, events)
}

type localUploadResponse struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// handleLocalUpload stores a recording under the upload directory, grouped by
// project when one is given.
func (s *Server) handleLocalUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.audioFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := fmt.Sprintf("%d%s", s.now().UnixMilli(), ext)
	rel := name
	if projectID := strings.TrimSpace(r.FormValue("projectId")); projectID != "" {
		rel = filepath.Join(sanitizeSegment(projectID), name)
	}
	target := filepath.Join(s.cfg.Paths.UploadDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		s.writeFailure(w, r, "upload failed", fmt.Errorf("create upload directory: %w", err))
		return
	}
	out, err := os.Create(target)
	if err != nil {
		s.writeFailure(w, r, "upload failed", fmt.Errorf("create upload file: %w", err))
		return
	}
	size, copyErr := io.Copy(out, file)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		cause := copyErr
		if cause == nil {
			cause = closeErr
		}
		s.writeFailure(w, r, "upload failed", fmt.Errorf("write upload file: %w", cause))
		return
	}

	urlPath := "/uploads/audio/" + filepath.ToSlash(rel)
	s.logger.Info("audio stored",
		logging.String("path", target),
		logging.Int64("bytes", size),
	)
	s.writeJSON(w, http.StatusOK, localUploadResponse{URL: urlPath, Path: filepath.ToSlash(rel), Filename: name, Size: size})
}

// sanitizeSegment keeps a caller-supplied id from escaping the upload root.
func sanitizeSegment(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "\\", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" || value == "." {
		return "_"
	}
	return value
}
