package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glance/recorder"
)

func TestInitializeReturnsRecordingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/recordings/initialize" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Title      string `json:"title"`
			NumRegions int    `json:"num_regions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload.Title != "standup demo" || payload.NumRegions != 2 {
			t.Errorf("payload = %+v", payload)
		}
		fmt.Fprint(w, `{"success":true,"data":{"recording_uuid":"rec-123"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	id, err := c.Initialize(context.Background(), "standup demo", 2)
	if err != nil {
		t.Fatal(err)
	}
	if id != "rec-123" {
		t.Errorf("id = %q", id)
	}
}

func TestInitializeRejectedByBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"error":"title required"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Initialize(context.Background(), "", 0); err == nil {
		t.Fatal("no error on success:false")
	} else if !strings.Contains(err.Error(), "title required") {
		t.Errorf("error = %v", err)
	}
}

func TestSetRegions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recordings/rec-123/regions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload struct {
			NumRegions int `json:"num_regions"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.NumRegions != 3 {
			t.Errorf("num_regions = %d", payload.NumRegions)
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).SetRegions(context.Background(), "rec-123", 3); err != nil {
		t.Fatal(err)
	}
}

func TestUploadMultipartFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recordings/rec-123/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer file.Close()
		if header.Filename != "recording.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "webm-bytes" {
			t.Errorf("file = %q", data)
		}
		if got := r.FormValue("duration"); got != "2.500" {
			t.Errorf("duration = %q", got)
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	media := recorder.Media{
		Bytes:    []byte("webm-bytes"),
		MIME:     "video/webm",
		Duration: 2500 * time.Millisecond,
	}
	if err := NewClient(srv.URL).Upload(context.Background(), "rec-123", media); err != nil {
		t.Fatal(err)
	}
}

func TestUploadFailureKeepsBytesUsable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"success":false,"error":"disk full"}`)
			return
		}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	media := recorder.Media{Bytes: []byte("webm-bytes"), Duration: time.Second}
	if err := c.Upload(context.Background(), "rec-123", media); err == nil {
		t.Fatal("first upload should fail")
	}
	// Same media object retries cleanly.
	if err := c.Upload(context.Background(), "rec-123", media); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"data":{"status":"healthy"}}`)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv.Close()
	if err := NewClient(srv.URL).Health(context.Background()); err == nil {
		t.Error("health succeeded against a dead backend")
	}
}
