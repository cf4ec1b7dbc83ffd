// Package validate checks request fields before they reach the store. Every
// failure is a *model.ValidationError naming the offending field.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/geosocial/proximity/internal/model"
)

const (
	maxNickname     = 32
	maxGroupName    = 64
	maxLocationName = 128
	maxDescription  = 500
	maxDetails      = 500
	minPassword     = 6
	maxPassword     = 72 // bcrypt ignores anything longer
)

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return model.NewValidationError(field, "is required")
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if utf8.RuneCountInString(*v) > limit {
		return model.NewValidationError(field, fmt.Sprintf("exceeds %d characters", limit))
	}
	return nil
}

func required(field, v string, limit int) error {
	if err := NonEmpty(field, v); err != nil {
		return err
	}
	return MaxLen(field, &v, limit)
}

// Nickname must be 1-32 characters and not blank.
func Nickname(v string) error { return required("nickname", v, maxNickname) }

// GroupName must be 1-64 characters and not blank.
func GroupName(v string) error { return required("name", v, maxGroupName) }

func LocationName(v string) error { return required("locationName", v, maxLocationName) }

func Description(v *string) error { return MaxLen("description", v, maxDescription) }

func Details(v *string) error { return MaxLen("details", v, maxDetails) }

// Password checks length in bytes, which is what bcrypt sees.
func Password(v string) error {
	if len(v) < minPassword {
		return model.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPassword))
	}
	if len(v) > maxPassword {
		return model.NewValidationError("password", fmt.Sprintf("exceeds %d bytes", maxPassword))
	}
	return nil
}

// -------- Request specific helpers ----------

// RegisterUser validates a registration. Temporary users have no password;
// everyone else needs one.
func RegisterUser(nickname, password string, temporary bool, loc *model.Coordinate) error {
	if err := Nickname(nickname); err != nil {
		return err
	}
	switch {
	case temporary && password != "":
		return model.NewValidationError("password", "temporary users cannot have a password")
	case !temporary:
		if err := Password(password); err != nil {
			return err
		}
	}
	if loc != nil {
		return loc.Validate()
	}
	return nil
}

func CreateGroup(creatorID, name, locationName string, loc model.Coordinate, description *string, password string) error {
	if err := NonEmpty("creatorId", creatorID); err != nil {
		return err
	}
	if err := GroupName(name); err != nil {
		return err
	}
	if err := LocationName(locationName); err != nil {
		return err
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	if err := Description(description); err != nil {
		return err
	}
	if password != "" {
		return Password(password)
	}
	return nil
}

func RecordActivity(userID string, kind model.ActivityType, loc model.Coordinate, details *string) error {
	if err := NonEmpty("userId", userID); err != nil {
		return err
	}
	if _, err := model.ParseActivityType(string(kind)); err != nil {
		return err
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	return Details(details)
}
