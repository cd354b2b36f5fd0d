package profiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

const ashaTOML = `user_id = "u1"
name = "Asha Rao"
email = "asha@example.com"
experience = "5"
skills = ["Go", "Kafka"]
preferred_roles = ["go developer", "backend engineer"]
preferred_locations = ["pune"]
resume_path = "{PROFILE_HOME}/asha.pdf"
`

const raviYAML = `user_id: u2
name: Ravi
email: ravi@example.com
preferred_roles: [sre]
resume_path: ravi.pdf
`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadsTomlAndYaml(t *testing.T) {
	t.Setenv("PROFILE_HOME", "/srv/cv")
	dir := t.TempDir()
	write(t, dir, "asha.toml", ashaTOML)
	write(t, dir, "ravi.yaml", raviYAML)
	write(t, dir, "notes.txt", "ignored")

	d := NewDirectory(dir, arbor.NewLogger())
	ctx := context.Background()

	asha, err := d.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", asha.Name)
	assert.Equal(t, []string{"go developer", "backend engineer"}, asha.PreferredRoles)
	assert.Equal(t, "/srv/cv/asha.pdf", asha.ResumePath)

	ravi, err := d.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ravi.pdf"), ravi.ResumePath)

	all, err := d.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u1", all[0].UserID)
	assert.Equal(t, "u2", all[1].UserID)
}

func TestMissingProfile(t *testing.T) {
	d := NewDirectory(t.TempDir(), arbor.NewLogger())
	_, err := d.GetProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, common.ErrProfileNotFound)
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	d := NewDirectory(filepath.Join(t.TempDir(), "absent"), arbor.NewLogger())
	all, err := d.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInvalidProfilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "no-user.toml", `name = "Anon"`)
	write(t, dir, "bad-email.yaml", "user_id: u3\nname: X\nemail: not-an-email\n")
	write(t, dir, "broken.toml", `user_id = `)
	write(t, dir, "ravi.yaml", raviYAML)

	d := NewDirectory(dir, arbor.NewLogger())
	all, err := d.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "u2", all[0].UserID)
}

func TestEditsAreReloaded(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "ravi.yaml", raviYAML)
	d := NewDirectory(dir, arbor.NewLogger())
	ctx := context.Background()

	p, err := d.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", p.Name)

	write(t, dir, "ravi.yaml", "user_id: u2\nname: Ravi Kumar\n")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	p, err = d.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", p.Name)

	require.NoError(t, os.Remove(path))
	_, err = d.GetProfile(ctx, "u2")
	assert.ErrorIs(t, err, common.ErrProfileNotFound)
}

func TestReturnedProfilesAreCopies(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "ravi.yaml", raviYAML)
	d := NewDirectory(dir, arbor.NewLogger())

	p, err := d.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	p.Name = "changed"

	again, err := d.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", again.Name)
}
