package prompts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbt-coach/internal/distress"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

func TestDefaultSnapshot(t *testing.T) {
	s := Default()
	require.NotEmpty(t, s.Version)
	require.NotNil(t, s.Scanner())

	for _, code := range []string{"DEFAULT", "US", "GB", "IT", "DE", "FR", "ES", "CH", "AT", "NL", "BE"} {
		rr, ok := s.Resources[code]
		require.True(t, ok, code)
		assert.Equal(t, code, rr.Region)
		assert.NotEmpty(t, rr.Lines, code)
	}

	res := s.Scanner().Scan("honestly life is not worth living")
	assert.Equal(t, risk.LevelHigh, res.Level)
}

func TestNormalizeRegion(t *testing.T) {
	cases := map[string]string{
		"UK":                   "GB",
		"uk":                   "GB",
		"I live in the UK":     "GB",
		"england":              "GB",
		"United States":        "US",
		"usa":                  "US",
		"en-GB":                "GB",
		"de-CH":                "CH",
		"Italy":                "IT",
		"I'm in Italia":        "IT",
		"IT":                   "IT",
		"fr":                   "FR",
		"Living in NL for now": "NL",
		"":                     "",
		"somewhere nice":       "",
		"I live in it":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRegion(in), "%q", in)
	}
}

func TestCrisisScript(t *testing.T) {
	s := Default()

	gb := s.CrisisScript("UK")
	assert.Contains(t, gb, "Samaritans")
	assert.Contains(t, gb, "999")
	assert.NotContains(t, gb, "{{")

	// Unknown regions get the international defaults.
	def := s.CrisisScript("Narnia")
	assert.Contains(t, def, "findahelpline.com")
	assert.Equal(t, def, s.CrisisScript(""))

	parts := strings.Split(gb, "\n\n")
	assert.Equal(t, strings.TrimSpace(s.Escalation.Crisis.Clarify), parts[0])
	assert.Equal(t, strings.TrimSpace(s.Escalation.Crisis.Stop), parts[len(parts)-1])
}

func TestResourcesBlockKeepsOrder(t *testing.T) {
	block := Default().ResourcesBlock("US")
	first := strings.Index(block, "988")
	last := strings.Index(block, "Emergency Services")
	require.True(t, first > 0 && last > first, block)
}

func TestSkillText(t *testing.T) {
	s := Default()
	out := s.StepPrompt(skill.BehavioralActivation, "break_down", map[string]string{"activity": "a walk"})
	assert.Contains(t, out, "a walk")

	out = s.Completion(skill.ThoughtRecord, map[string]string{"intensity_before": "7", "intensity_after": "3"})
	assert.Contains(t, out, "7/10 to 3/10")

	assert.Contains(t, s.Abandoned(skill.Exposure, skill.NoticeTraumaReferral), "trauma")
	assert.Equal(t, strings.TrimSpace(s.Skills[skill.Exposure].Abandoned), s.Abandoned(skill.Exposure, ""))
	assert.NotEmpty(t, s.Disclaimer(distress.DisclaimerCrisisBoundary))
	assert.Equal(t, "Thought Record", s.SkillTitle(skill.ThoughtRecord))
}

func TestProgress(t *testing.T) {
	s := Default()
	assert.Equal(t, strings.TrimSpace(s.Flow.ProgressEmpty), s.Progress(nil))
	assert.Contains(t, s.Flow.Menu, "6. Review your progress")

	out := s.Progress([]string{"- Thought Record (completed, 1 Mar)", "- Coping Skill (abandoned, 27 Feb)"})
	assert.Equal(t, "Here's what you've practised recently:\n\n- Thought Record (completed, 1 Mar)\n- Coping Skill (abandoned, 27 Feb)", out)
}

func TestParseRejectsIncompleteSnapshots(t *testing.T) {
	_, err := Parse([]byte("flow:\n  consent: hi\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing flow.menu")
	assert.Contains(t, err.Error(), "missing flow.progress")
	assert.Contains(t, err.Error(), "missing resources.default")

	_, err = Parse([]byte("no_such_section: true\n"))
	require.Error(t, err)

	broken := strings.Replace(string(defaultYAML), "{{.Resources}}", "{{.Resources", 1)
	_, err = Parse([]byte(broken))
	require.Error(t, err)
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, defaultYAML, 0o600))

	st, err := NewStore(WithFile(path))
	require.NoError(t, err)
	before := st.Snapshot()

	edited := strings.Replace(string(defaultYAML), "Welcome.", "Hello there.", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o600))

	after, err := st.Reload(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before.Version, after.Version)
	assert.Contains(t, st.Snapshot().Consent("US"), "Hello there.")
	// A snapshot already handed out is not changed by the reload.
	assert.Contains(t, before.Consent("US"), "Welcome.")

	require.NoError(t, os.WriteFile(path, []byte("flow: ["), 0o600))
	kept, err := st.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, after.Version, kept.Version)
	assert.Same(t, after, st.Snapshot())
}

func TestNewStoreDefaultsToEmbedded(t *testing.T) {
	st, err := NewStore()
	require.NoError(t, err)
	assert.Equal(t, Default().Version, st.Snapshot().Version)

	_, err = NewStore(WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}
