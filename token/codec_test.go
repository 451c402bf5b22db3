package token

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeRejectsIncompleteRecords(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing user id", func(r *Record) { r.UserID = "" }},
		{"missing access secret", func(r *Record) { r.AccessSecret = "" }},
		{"missing refresh secret", func(r *Record) { r.RefreshSecret = "" }},
		{"unset access expiration", func(r *Record) { r.AccessExpiration = 0 }},
		{"unset refresh expiration", func(r *Record) { r.RefreshExpiration = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord("u-1", "acc-1", now)
			tt.mutate(rec)
			if _, err := Encode(rec); err == nil {
				t.Fatal("expected encode error")
			}
		})
	}
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "pickle!"},
		{"wrong shape", `[1,2,3]`},
		{"missing fields", `{"user_id":"u-1"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); !errors.Is(err, ErrRecordCorrupt) {
				t.Fatalf("expected ErrRecordCorrupt, got %v", err)
			}
		})
	}
}

func TestRecordValidityWindows(t *testing.T) {
	now := time.Now()
	rec := testRecord("u-1", "acc-1", now)

	if !rec.AccessValid(now) || !rec.RefreshValid(now) {
		t.Fatal("fresh record should be active")
	}

	afterAccess := now.Add(16 * time.Minute)
	if rec.AccessValid(afterAccess) {
		t.Fatal("access window should be closed")
	}
	if !rec.RefreshValid(afterAccess) {
		t.Fatal("refresh window should outlive access window")
	}

	afterRefresh := now.Add(721 * time.Hour)
	if rec.RefreshValid(afterRefresh) {
		t.Fatal("refresh window should be closed")
	}
}
