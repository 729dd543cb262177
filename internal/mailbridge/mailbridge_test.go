package mailbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendConvoEntryEmail(t *testing.T) {
	var got SendEntryRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/send-convo-entry" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "bridge-key", time.Second)
	err := c.SendConvoEntryEmail(context.Background(), SendEntryRequest{
		OrgID:                        4,
		ConvoPublicID:                "c_abc",
		EntryPublicID:                "ce_def",
		SendAsIdentityPublicID:       "ei_ghi",
		AddressedParticipantPublicID: "cp_jkl",
	})
	if err != nil {
		t.Fatalf("SendConvoEntryEmail: %v", err)
	}
	if gotAuth != "bridge-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.ConvoPublicID != "c_abc" || got.EntryPublicID != "ce_def" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendConvoEntryEmailServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "smtp backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	err := c.SendConvoEntryEmail(context.Background(), SendEntryRequest{ConvoPublicID: "c_abc"})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}
