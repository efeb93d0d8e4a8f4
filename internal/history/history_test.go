package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
)

func messages(n int) []models.Message {
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out = append(out, models.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	return out
}

func TestBuildBoundsWindow(t *testing.T) {
	tests := []struct {
		name      string
		stored    int
		window    int
		wantTurns int
		wantFirst string
	}{
		{name: "empty history", stored: 0, window: 8, wantTurns: 1, wantFirst: "new"},
		{name: "short history", stored: 3, window: 8, wantTurns: 4, wantFirst: "m0"},
		{name: "exact window", stored: 8, window: 8, wantTurns: 9, wantFirst: "m0"},
		{name: "long history", stored: 20, window: 8, wantTurns: 9, wantFirst: "m12"},
		{name: "zero window", stored: 5, window: 0, wantTurns: 1, wantFirst: "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := New(tt.window).Build("new", messages(tt.stored), "")
			require.Len(t, turns, tt.wantTurns)
			require.Equal(t, tt.wantFirst, turns[0].Content)

			last := turns[len(turns)-1]
			require.Equal(t, models.RoleUser, last.Role)
			require.Equal(t, "new", last.Content)
		})
	}
}

func TestBuildKeepsImageAndSkipsUnknownRoles(t *testing.T) {
	stored := []models.Message{
		{Role: models.RoleUser, Content: "a"},
		{Role: "system", Content: "ignored"},
		{Role: models.RoleAssistant, Content: "b"},
	}

	turns := New(DefaultWindow).Build("see this", stored, "https://img.example/p.png")
	require.Len(t, turns, 3)
	require.Equal(t, []string{"a", "b", "see this"}, []string{turns[0].Content, turns[1].Content, turns[2].Content})
	require.True(t, turns[2].HasImage())
	require.Equal(t, "https://img.example/p.png", turns[2].ImageURL)
}
