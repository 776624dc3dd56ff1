package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{"valid tag", "chat:message", false},
		{"derived tag", "eventa:chats:list-receive-stream-end", false},
		{"empty tag", "", true},
		{"long tag", strings.Repeat("a", 256), true},
		{"max length tag", strings.Repeat("a", 255), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTag() error = %v, wantErr %v", err, tt.wantErr)
			}
			var coded *Error
			if err != nil && (!errors.As(err, &coded) || coded.Code != CodeInvalidTag) {
				t.Errorf("ValidateTag() error = %v, want code %s", err, CodeInvalidTag)
			}
		})
	}
}

func TestValidateTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"valid timeout", 5 * time.Second, false},
		{"zero timeout", 0, true},
		{"negative timeout", -1 * time.Second, true},
		{"too large timeout", 10 * time.Minute, true},
		{"max timeout", MaxInvokeTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTimeout(tt.timeout)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTimeout() error = %v, wantErr %v", err, tt.wantErr)
			}
			var coded *Error
			if err != nil && (!errors.As(err, &coded) || coded.Code != CodeInvalidTimeout) {
				t.Errorf("ValidateTimeout() error = %v, want code %s", err, CodeInvalidTimeout)
			}
		})
	}
}
