package email

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSender appends every message to a local file. Enabled alongside the
// real transport via LOG_EMAILS to keep a delivery audit trail during
// staging runs.
type FileSender struct {
	filePath string
}

// NewFileSender creates a FileSender and ensures the log file's directory
// exists.
func NewFileSender(filePath string) (Sender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}

	return &FileSender{filePath: filePath}, nil
}

// Send appends the raw message, framed with a timestamped header, to the log
// file.
func (s *FileSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("FileSender: Failed to open log file '%s': %v", s.filePath, err)
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("--- Email logged at %s (To: %v, Subject: %s) ---\n%s--- End logged email ---\n\n",
		time.Now().Format(time.RFC3339Nano), to, subject, rawMessage)

	if _, err := file.WriteString(entry); err != nil {
		log.Printf("FileSender: Failed to write to log file '%s': %v", s.filePath, err)
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	return nil
}
