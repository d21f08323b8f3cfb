package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prdforge/internal/services"
)

func TestTranscribeSendsMultipart(t *testing.T) {
	var gotModel, gotLanguage, gotFile, gotAuth string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		gotFile = hdr.Filename
		gotAudio, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" 我们需要一个登录页面 "}`))
	}))
	defer srv.Close()

	client := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	text, err := client.Transcribe(context.Background(), "/tmp/meeting.mp3", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "我们需要一个登录页面" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotModel != "whisper-1" || gotLanguage != "zh" {
		t.Fatalf("unexpected fields model=%q language=%q", gotModel, gotLanguage)
	}
	if gotFile != "meeting.mp3" || string(gotAudio) != "audio-bytes" {
		t.Fatalf("unexpected file %q %q", gotFile, gotAudio)
	}
}

func TestTranscribeRequiresKey(t *testing.T) {
	_, err := New(Config{}).Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranscribeQuotaClassifiedAs402(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "sk", BaseURL: srv.URL}).Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if got := services.Classify(err).Status; got != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", got)
	}
}

func TestTranscribeInvalidKeyClassifiedAs401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "sk", BaseURL: srv.URL}).Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	if got := services.Classify(err).Status; got != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%v)", got, err)
	}
}
