package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coordinator-core/coordinator/internal/store"
)

func TestZoneManager_OwnershipAndReadOnly(t *testing.T) {
	zm := NewZoneManager([]store.Zone{
		{Pattern: "src/auth/**", Owner: "claude"},
		{Pattern: "src/config/**", ReadOnly: true},
	})

	assert.False(t, zm.CanModify("src/auth/login.ts", "gemini"))
	assert.True(t, zm.CanModify("src/auth/login.ts", "claude"))
	assert.False(t, zm.CanModify("src/config/x.ts", "claude"))
	assert.True(t, zm.CanModify("src/utils.ts", "anyone"))
}

func TestZoneManager_GetFileOwner_FirstMatchWins(t *testing.T) {
	zm := NewZoneManager([]store.Zone{
		{Pattern: "src/auth/admin/**", Owner: "lead-agent"},
		{Pattern: "src/auth/**", Owner: "claude"},
	})

	owner, ok := zm.GetFileOwner("src/auth/admin/panel.ts")
	assert.True(t, ok)
	assert.Equal(t, "lead-agent", owner)

	owner, ok = zm.GetFileOwner("src/auth/login.ts")
	assert.True(t, ok)
	assert.Equal(t, "claude", owner)

	_, ok = zm.GetFileOwner("src/other.ts")
	assert.False(t, ok)
}

func TestZoneManager_CanModify_ScansAllMatchingZonesNotJustFirst(t *testing.T) {
	zm := NewZoneManager([]store.Zone{
		{Pattern: "src/**", Owner: "bob"},
		{Pattern: "src/secrets/**", ReadOnly: true},
	})

	// The first-matching zone (src/**) owns the path to bob and says
	// nothing about readonly, but the later, more specific zone
	// (src/secrets/**) is readonly — CanModify must still deny, even for
	// the owner.
	assert.False(t, zm.CanModify("src/secrets/x", "bob"))
	assert.False(t, zm.CanModify("src/secrets/x", "anyone"))
	assert.True(t, zm.CanModify("src/app.ts", "bob"))
	assert.False(t, zm.CanModify("src/app.ts", "someone-else"))
}

func TestGlobToRegex_SingleStarDoesNotCrossSlash(t *testing.T) {
	zm := NewZoneManager([]store.Zone{{Pattern: "src/*.ts", Owner: "claude"}})

	assert.True(t, zm.CanModify("src/utils.ts", "claude"))
	owner, ok := zm.GetFileOwner("src/nested/utils.ts")
	assert.False(t, ok)
	assert.Empty(t, owner)
}

func TestGlobToRegex_QuestionMarkMatchesSingleChar(t *testing.T) {
	zm := NewZoneManager([]store.Zone{{Pattern: "file?.go", Owner: "claude"}})

	_, ok := zm.GetFileOwner("file1.go")
	assert.True(t, ok)
	_, ok = zm.GetFileOwner("file12.go")
	assert.False(t, ok)
}
