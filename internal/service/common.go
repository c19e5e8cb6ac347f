package service

import (
	"github.com/google/uuid"

	"resale-hub/internal/repository/postgres"
)

func isUniqueViolationOn(err error, constraint string) bool {
	return postgres.IsUniqueViolation(err, constraint)
}

func isCodeCollision(err error) bool {
	return isUniqueViolationOn(err, "login_codes_code_key")
}

func strPtr(s string) *string {
	return &s
}

func uuidToStringPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
