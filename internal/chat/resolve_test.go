package chat

import (
	"errors"
	"testing"
)

func TestResolveSession(t *testing.T) {
	explicit := &Session{ID: "s-explicit", PersonaID: "p1"}
	foreign := &Session{ID: "s-foreign", PersonaID: "p2"}
	active := &Session{ID: "s-active", PersonaID: "p1"}

	tests := []struct {
		name         string
		explicit     *Session
		latestActive *Session
		personaID    string
		wantID       string
		wantNew      bool
		wantErr      error
	}{
		{
			name:      "explicit session wins",
			explicit:  explicit,
			personaID: "p1",
			wantID:    "s-explicit",
		},
		{
			name:         "explicit beats latest active",
			explicit:     explicit,
			latestActive: active,
			personaID:    "p1",
			wantID:       "s-explicit",
		},
		{
			name:      "explicit session with wrong persona",
			explicit:  foreign,
			personaID: "p1",
			wantErr:   ErrPersonaMismatch,
		},
		{
			name:         "falls back to latest active",
			latestActive: active,
			personaID:    "p1",
			wantID:       "s-active",
		},
		{
			name:      "nothing to resume",
			personaID: "p1",
			wantNew:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, createNew, err := ResolveSession(tt.explicit, tt.latestActive, tt.personaID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if createNew != tt.wantNew {
				t.Fatalf("createNew = %v, want %v", createNew, tt.wantNew)
			}
			if tt.wantID != "" && (sess == nil || sess.ID != tt.wantID) {
				t.Fatalf("session = %+v, want id %q", sess, tt.wantID)
			}
		})
	}
}
