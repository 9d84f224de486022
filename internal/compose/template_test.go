package compose

import (
	"strings"
	"testing"
)

func TestNewTemplateRequiresSingleMarker(t *testing.T) {
	if _, err := NewTemplate("<html></html>"); err == nil {
		t.Fatalf("template without marker should fail")
	}
	if _, err := NewTemplate(Marker + Marker); err == nil {
		t.Fatalf("template with duplicate marker should fail")
	}
	if _, err := NewTemplate("<html>" + Marker + "</html>"); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}

func TestRenderInsertOrder(t *testing.T) {
	tpl := mustTemplate(t, "<html>"+Marker+"</html>")

	got := string(tpl.Render(Partial{Raw: "<h1>Hi</h1>", Title: "Hi"}))
	if got != "<html><title>Hi</title><h1>Hi</h1></html>" {
		t.Fatalf("unexpected render: %s", got)
	}

	offline := string(tpl.Render(Partial{Raw: "<h1>Down</h1>", Title: "", Offline: true}))
	want := `<html><meta name="offline" content="true"><title></title><h1>Down</h1></html>`
	if offline != want {
		t.Fatalf("offline render mismatch:\n got %s\nwant %s", offline, want)
	}
	// 离线 meta 必须排在 title 之前。
	if strings.Index(offline, "offline") > strings.Index(offline, "<title>") {
		t.Fatalf("offline meta must precede the title element")
	}
}

func TestRenderReplacesMarkerOnce(t *testing.T) {
	tpl := mustTemplate(t, "a"+Marker+"b")
	got := string(tpl.Render(Partial{Raw: Marker, Title: ""}))
	// 正文里出现的标记字面量不应再被替换。
	if got != "a<title></title>"+Marker+"b" {
		t.Fatalf("marker must be replaced exactly once: %s", got)
	}
}

func TestDefaultTemplateIsValid(t *testing.T) {
	tpl := DefaultTemplate()
	got := string(tpl.Render(Partial{Raw: "<p>x</p>"}))
	if !strings.Contains(got, "<p>x</p>") {
		t.Fatalf("default template should render content: %s", got)
	}
	if strings.Contains(got, Marker) {
		t.Fatalf("marker must not survive rendering: %s", got)
	}
}

func TestDecodePartial(t *testing.T) {
	partial, err := DecodePartial("/a/index.json", []byte(`{"raw":"<p>x</p>","title":"T"}`))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if partial.Raw != "<p>x</p>" || partial.Title != "T" || partial.Offline {
		t.Fatalf("unexpected partial: %+v", partial)
	}

	if _, err := DecodePartial("/a/index.json", []byte(`not json`)); err == nil {
		t.Fatalf("malformed json should fail")
	}
	if _, err := DecodePartial("/a/index.json", []byte(`{"title":"T"}`)); err == nil {
		t.Fatalf("missing raw should fail")
	}
}
