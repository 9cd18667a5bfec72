package sentry

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestScrubEvent_RedactsSensitiveHeaders(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Headers: map[string]string{
				"Authorization":   "Bearer secret-token",
				"Cookie":          "session=abc123",
				"X-Forwarded-For": "192.168.1.7",
				"Content-Type":    "application/json",
			},
		},
	}

	result := ScrubEvent(event, nil)

	for _, h := range []string{"Authorization", "Cookie", "X-Forwarded-For"} {
		if result.Request.Headers[h] != "[Filtered]" {
			t.Errorf("expected %s to be [Filtered], got %s", h, result.Request.Headers[h])
		}
	}
	if result.Request.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected Content-Type to be preserved, got %s", result.Request.Headers["Content-Type"])
	}
}

func TestScrubEvent_StripsRequestBody(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Data: `{"progress":42}`,
		},
	}

	result := ScrubEvent(event, nil)

	if result.Request.Data != "" {
		t.Errorf("expected request body to be stripped, got %s", result.Request.Data)
	}
}

func TestScrubEvent_ScrubsSensitiveTags(t *testing.T) {
	event := &sentry.Event{
		Tags: map[string]string{
			"operation": "start",
			"ip":        "192.168.1.7",
			"lyric":     "[00:00.00]la",
		},
	}

	result := ScrubEvent(event, nil)

	if result.Tags["operation"] != "start" {
		t.Errorf("expected operation tag to be preserved, got %s", result.Tags["operation"])
	}
	if result.Tags["ip"] != "[Filtered]" {
		t.Errorf("expected ip tag to be [Filtered], got %s", result.Tags["ip"])
	}
	if result.Tags["lyric"] != "[Filtered]" {
		t.Errorf("expected lyric tag to be [Filtered], got %s", result.Tags["lyric"])
	}
}

func TestScrubEvent_ScrubsBreadcrumbData(t *testing.T) {
	event := &sentry.Event{
		Breadcrumbs: []*sentry.Breadcrumb{
			{
				Data: map[string]interface{}{
					"url":           "/subscribe-player-status",
					"lyricLineText": "hello",
				},
			},
		},
	}

	result := ScrubEvent(event, nil)

	if result.Breadcrumbs[0].Data["url"] != "/subscribe-player-status" {
		t.Errorf("expected url breadcrumb to be preserved, got %v", result.Breadcrumbs[0].Data["url"])
	}
	if result.Breadcrumbs[0].Data["lyricLineText"] != "[Filtered]" {
		t.Errorf("expected lyricLineText breadcrumb to be [Filtered], got %v", result.Breadcrumbs[0].Data["lyricLineText"])
	}
}

func TestScrubEvent_HandlesEmptyEvent(t *testing.T) {
	if ScrubEvent(&sentry.Event{}, nil) == nil {
		t.Error("expected non-nil event")
	}
}

func TestInitWithoutDSNDisablesReporting(t *testing.T) {
	if err := Init("", "test"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	// Must not panic or block without a client.
	CaptureError(errors.New("listen tcp: bind: address already in use"), map[string]string{"operation": "start"})
	CaptureError(nil, nil)
	Flush(0)
}
