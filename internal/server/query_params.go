package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}

func parseOptionalID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	id, err := parseID(trimmed)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
