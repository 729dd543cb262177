package storage

import "testing"

func TestAttachmentKey(t *testing.T) {
	got := AttachmentKey("o_org1", "att_abc", "report.pdf")
	want := "o_org1/att_abc/report.pdf"
	if got != want {
		t.Fatalf("AttachmentKey = %q, want %q", got, want)
	}
}

func TestAttachmentURL(t *testing.T) {
	c := &Client{publicURL: "https://files.example.com"}
	got := c.AttachmentURL("acme", "att_abc", "screen shot.png")
	want := "https://files.example.com/attachment/acme/att_abc/screen%20shot.png"
	if got != want {
		t.Fatalf("AttachmentURL = %q, want %q", got, want)
	}
}

func TestAttachmentURLTrimsTrailingSlash(t *testing.T) {
	c, err := New(Config{Endpoint: "localhost:9000", Bucket: "attachments", PublicURL: "https://files.example.com/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.AttachmentURL("acme", "att_abc", "a.txt")
	if got != "https://files.example.com/attachment/acme/att_abc/a.txt" {
		t.Fatalf("AttachmentURL = %q", got)
	}
}
