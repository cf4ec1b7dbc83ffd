package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/geosocial/proximity/internal/model"
)

func TestRegisterUser(t *testing.T) {
	tests := []struct {
		name      string
		nickname  string
		password  string
		temporary bool
		loc       *model.Coordinate
		field     string
	}{
		{name: "registered", nickname: "kim", password: "secret1"},
		{name: "temporary", nickname: "guest", temporary: true},
		{name: "blank nickname", nickname: "   ", password: "secret1", field: "nickname"},
		{name: "long nickname", nickname: strings.Repeat("é", 33), password: "secret1", field: "nickname"},
		{name: "short password", nickname: "kim", password: "abc", field: "password"},
		{name: "long password", nickname: "kim", password: strings.Repeat("x", 73), field: "password"},
		{name: "temporary with password", nickname: "kim", password: "secret1", temporary: true, field: "password"},
		{name: "bad location", nickname: "kim", temporary: true, loc: &model.Coordinate{Latitude: 100}, field: "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterUser(tt.nickname, tt.password, tt.temporary, tt.loc)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve model.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("want validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestCreateGroup(t *testing.T) {
	loc := model.Coordinate{Latitude: 1, Longitude: 1}
	if err := CreateGroup("u1", "Runners", "Park", loc, nil, ""); err != nil {
		t.Fatalf("valid group rejected: %v", err)
	}
	if err := CreateGroup("", "Runners", "Park", loc, nil, ""); !model.IsValidationError(err) {
		t.Fatalf("expected creatorId error, got %v", err)
	}
	if err := CreateGroup("u1", "Runners", "", loc, nil, ""); !model.IsValidationError(err) {
		t.Fatalf("expected locationName error, got %v", err)
	}
	long := strings.Repeat("d", 501)
	if err := CreateGroup("u1", "Runners", "Park", loc, &long, ""); !model.IsValidationError(err) {
		t.Fatalf("expected description error, got %v", err)
	}
	if err := CreateGroup("u1", "Runners", "Park", loc, nil, "123"); !model.IsValidationError(err) {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestRecordActivity(t *testing.T) {
	loc := model.Coordinate{Latitude: 1, Longitude: 1}
	if err := RecordActivity("u1", model.ActivityUserCheckin, loc, nil); err != nil {
		t.Fatalf("valid activity rejected: %v", err)
	}
	if err := RecordActivity("u1", "DANCE", loc, nil); !model.IsValidationError(err) {
		t.Fatalf("expected activity type error, got %v", err)
	}
}
