package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"prdforge/internal/config"
	"prdforge/internal/media/segment"
	"prdforge/internal/prd"
	"prdforge/internal/services/aliyun"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/oss"
	"prdforge/internal/summary"
	"prdforge/internal/testsupport"
	"prdforge/internal/transcript"
)

type fakeSession struct {
	mu        sync.Mutex
	sent      int
	events    chan transcript.StreamEvent
	closed    chan struct{}
	closeOnce sync.Once

	onFirstSend func(s *fakeSession)
	onCloseSend func(s *fakeSession)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan transcript.StreamEvent, 32),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Send(pcm []byte) error {
	s.mu.Lock()
	s.sent++
	first := s.sent == 1
	s.mu.Unlock()
	if first && s.onFirstSend != nil {
		go s.onFirstSend(s)
	}
	return nil
}

func (s *fakeSession) Events() <-chan transcript.StreamEvent { return s.events }

func (s *fakeSession) CloseSend() error {
	if s.onCloseSend != nil {
		go s.onCloseSend(s)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) emit(evs ...transcript.StreamEvent) {
	for _, ev := range evs {
		select {
		case s.events <- ev:
		case <-s.closed:
			return
		}
	}
}

// sayingRecognizer opens sessions that recognize text as one final sentence
// and complete when audio ends.
type sayingRecognizer struct {
	text string
}

func (r *sayingRecognizer) Open(_ context.Context, _ transcript.StreamOptions) (transcript.StreamSession, error) {
	sess := newFakeSession()
	sess.onFirstSend = func(s *fakeSession) {
		s.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: r.text, BeginTime: 0, EndTime: 1200})
	}
	sess.onCloseSend = func(s *fakeSession) {
		// Give the final a head start so completion follows it.
		time.Sleep(20 * time.Millisecond)
		s.emit(transcript.StreamEvent{Type: transcript.EventCompleted})
		close(s.events)
	}
	sess.events <- transcript.StreamEvent{Type: transcript.EventStarted}
	return sess, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return f.text, f.err
}

type fakeTokens struct {
	token aliyun.Token
	err   error
}

func (f *fakeTokens) Token(context.Context) (aliyun.Token, error) { return f.token, f.err }

type fakeFileTrans struct {
	mu        sync.Mutex
	submitted []string
	task      filetrans.Task
}

func (f *fakeFileTrans) Submit(_ context.Context, fileURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, fileURL)
	return "task-1", nil
}

func (f *fakeFileTrans) Status(_ context.Context, taskID string) (filetrans.Task, error) {
	task := f.task
	task.ID = taskID
	return task, nil
}

func (f *fakeFileTrans) Poll(_ context.Context, taskID string, opts filetrans.PollOptions) (filetrans.Task, error) {
	if opts.OnProgress != nil {
		opts.OnProgress(filetrans.StatusRunning)
	}
	task := f.task
	task.ID = taskID
	task.Status = filetrans.StatusSuccess
	return task, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Upload(_ context.Context, data io.Reader, objectName string, _ oss.UploadOptions) (oss.UploadResult, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return oss.UploadResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectName] = body
	return oss.UploadResult{URL: "https://bucket.example/" + objectName, ObjectName: objectName}, nil
}

func (f *fakeObjects) Delete(_ context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	f.deleted = append(f.deleted, objectName)
	return nil
}

type noSegmenter struct{}

func (noSegmenter) Split(context.Context, string, float64, string) ([]segment.Segment, error) {
	return nil, nil
}

type harness struct {
	cfg        *config.Config
	components *Components
	server     *Server
	objects    *fakeObjects
	files      *fakeFileTrans
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Streaming.FrameIntervalMillis = 0
	objects := newFakeObjects()
	files := &fakeFileTrans{task: filetrans.Task{Status: filetrans.StatusSuccess, Text: "识别结果"}}
	components := &Components{
		Store:       testsupport.MustOpenStore(t, cfg),
		Generator:   prd.NewGenerator(nil, prd.WithMock(true)),
		Objects:     objects,
		FileTrans:   files,
		Tokens:      &fakeTokens{token: aliyun.Token{ID: "tok-1", ExpireTime: 1700000000}},
		Segmenter:   noSegmenter{},
		Recognizer:  &sayingRecognizer{text: "你好世界"},
		Transcriber: &fakeTranscriber{text: "转写文本"},
		State:       summary.NewMemory(),
	}
	srv, err := New(cfg, components, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return &harness{cfg: cfg, components: components, server: srv, objects: objects, files: files}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a form with one file part and optional fields.
func multipartRequest(t *testing.T, target, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
