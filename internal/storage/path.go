package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAnswerPath lays archived answers out by the UTC hour they were asked.
func BuildAnswerPath(answerID string, askedAt time.Time) (string, error) {
	if err := validatePathComponent(answerID, "answer id"); err != nil {
		return "", err
	}

	ts := askedAt.UTC()
	return path.Join(
		"answers",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("answer-%s.parquet", answerID),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
