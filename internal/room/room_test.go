package room

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateNameRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"one char", "a", "a", false},
		{"100 chars", strings.Repeat("a", 100), strings.Repeat("a", 100), false},
		{"101 chars", strings.Repeat("a", 101), "", true},
		{"trims whitespace", "  general  ", "general", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateNameRequired(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNameRequired(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrNameLength) {
					t.Errorf("error = %v, want ErrNameLength", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ValidateNameRequired(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	t.Parallel()

	if err := ValidateTopic(strings.Repeat("a", 1024)); err != nil {
		t.Errorf("1024 chars: unexpected error %v", err)
	}
	if err := ValidateTopic(strings.Repeat("a", 1025)); !errors.Is(err, ErrTopicLength) {
		t.Errorf("1025 chars: error = %v, want ErrTopicLength", err)
	}
}

func TestRoomIsMember(t *testing.T) {
	t.Parallel()

	member := uuid.New()
	nonMember := uuid.New()
	rm := NewWithMembers(uuid.New(), "general", "", true, time.Now(), []uuid.UUID{member})

	if !rm.IsMember(member) {
		t.Error("expected member to be a member")
	}
	if rm.IsMember(nonMember) {
		t.Error("expected non-member to not be a member")
	}
}

func TestRoomIsMember_NilRoom(t *testing.T) {
	t.Parallel()

	var rm *Room
	if rm.IsMember(uuid.New()) {
		t.Error("nil room must never report membership")
	}
}
