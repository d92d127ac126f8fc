package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var at = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func TestFormatAuditLine(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{
			"unlock with cascade",
			StageTransitionEvent{SceneID: "s1", Stage: 8, Action: "unlock", From: "locked", To: "draft", Cascaded: []int{9, 10}, Subject: "u1"},
			"[2025-03-04T10:00:00Z] Stage unlock | scene_id=s1 | stage=8 | locked -> draft | outdated=[9,10] | by=u1",
		},
		{
			"inheritance",
			InheritanceCompletedEvent{SceneID: "s2", Created: 3},
			"[2025-03-04T10:00:00Z] Inheritance completed | scene_id=s2 | created=3",
		},
		{
			"transformation dismissed",
			TransformationChangedEvent{TransformationID: "t1", InstanceID: "i1", Action: "dismissed", Kind: "instant"},
			"[2025-03-04T10:00:00Z] Transformation dismissed | id=t1 | instance_id=i1 | kind=instant | confirmed=false",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Wrap(tc.ev, at)
			if err != nil {
				t.Fatalf("Wrap failed: %v", err)
			}
			got, err := FormatAuditLine(env)
			if err != nil {
				t.Fatalf("FormatAuditLine failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got  %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestFormatAuditLineRejectsUnknownType(t *testing.T) {
	if _, err := FormatAuditLine(Envelope{Type: "scene.archived"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink := &fileSink{path: path}
	body := []byte(`{"type":"inheritance.completed","occurred_at":"x","payload":{"scene_id":"s9","created":1}}`)
	for i := 0; i < 2; i++ {
		if err := sink.handle(body); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}
	if err := sink.handle([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if n := strings.Count(string(raw), "scene_id=s9"); n != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", n, raw)
	}
}
