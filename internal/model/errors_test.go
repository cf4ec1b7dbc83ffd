package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestValidationErrorMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewValidationError("latitude", "bad"))
	if !IsValidationError(err) {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected errors.Is ErrValidation")
	}
}

func TestUnavailableErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load: %w", StoreUnavailable("users.get", cause))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable")
	}
	if errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("store error must not match index sentinel")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should unwrap")
	}
	if StoreUnavailable("x", nil) != nil || IndexUnavailable("x", nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}

func TestCoordinateValidate(t *testing.T) {
	cases := []struct {
		c  Coordinate
		ok bool
	}{
		{Coordinate{0, 0}, true},
		{Coordinate{90, 180}, true},
		{Coordinate{-90, -180}, true},
		{Coordinate{90.0001, 0}, false},
		{Coordinate{0, -180.5}, false},
		{Coordinate{math.NaN(), 0}, false},
		{Coordinate{0, math.Inf(1)}, false},
	}
	for _, tc := range cases {
		err := tc.c.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("Validate(%v) err=%v, want ok=%v", tc.c, err, tc.ok)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"users": KindUser, "group": KindGroup, "activities": KindActivity} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("vault"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDiscoverable(t *testing.T) {
	now := time.Now()
	u := &User{UserID: "u1"}
	if u.Discoverable(now) {
		t.Fatalf("user without location must not be discoverable")
	}
	u.Location = &Coordinate{Latitude: 1, Longitude: 2}
	if !u.Discoverable(now) {
		t.Fatalf("located user must be discoverable")
	}

	past := now.Add(-time.Minute)
	a := &Activity{ActivityID: "a1", ExpiresAt: &past}
	if a.Discoverable(now) {
		t.Fatalf("expired activity must not be discoverable")
	}
	a.ExpiresAt = nil
	if !a.Discoverable(now) {
		t.Fatalf("activity without expiry must be discoverable")
	}
}
