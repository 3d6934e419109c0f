package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/nearby"
	"callingcard/internal/app/user"
)

func TestPrompter_AnswersInOrder(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(&out)

	var answers []string
	p.Ask("first?", func(yes bool) { answers = append(answers, "first", onOff(yes)) })
	p.Ask("second?", func(yes bool) { answers = append(answers, "second", onOff(yes)) })

	assert.Equal(t, "? first?\n", out.String(), "second question waits")

	assert.True(t, p.Answer("Y"))
	assert.Contains(t, out.String(), "? second?")
	assert.True(t, p.Answer("nope"))
	assert.False(t, p.Answer("pub on"))

	assert.Equal(t, []string{"first", "on", "second", "off"}, answers)
}

func TestTerminalView_LookupAndFiltering(t *testing.T) {
	var out bytes.Buffer
	v := newTerminalView(&out, newPrompter(&out))

	ada, err := user.New("Ada", "ada@example.com", "")
	require.NoError(t, err)
	bob, err := user.New("Bob", "bob@example.com", "")
	require.NoError(t, err)

	v.ShowNearby([]user.User{ada, {Name: "no email"}, bob, ada})
	v.ShowSaved(nil)

	got, ok := v.lookup("n2")
	require.True(t, ok)
	assert.Equal(t, bob, got)

	for _, ref := range []string{"n3", "n0", "s1", "x1", "n", "nx"} {
		_, ok := v.lookup(ref)
		assert.False(t, ok, ref)
	}
	assert.Contains(t, out.String(), "No saved users yet.")
}

func TestConsentResolver(t *testing.T) {
	var out bytes.Buffer
	prompts := newPrompter(&out)

	var recorded []bool
	r := &consentResolver{prompts: prompts, record: func(accept bool) error {
		recorded = append(recorded, accept)
		return nil
	}}

	status := nearby.Status{Code: nearby.StatusNeedsResolution, Resolution: nearby.ResolutionNearbyOptIn}

	var results []bool
	require.NoError(t, r.StartResolution(nearby.OpPublish, status, func(ok bool) { results = append(results, ok) }))
	prompts.Answer("y")

	require.NoError(t, r.StartResolution(nearby.OpSubscribe, status, func(ok bool) { results = append(results, ok) }))
	prompts.Answer("n")

	assert.Equal(t, []bool{true, false}, results)
	assert.Equal(t, []bool{true}, recorded)

	assert.Error(t, r.StartResolution(nearby.OpPublish, nearby.Status{Resolution: "OTHER"}, func(bool) {}))
}

func TestConsentResolver_RecordFailureDeclines(t *testing.T) {
	prompts := newPrompter(&bytes.Buffer{})
	r := &consentResolver{prompts: prompts, record: func(bool) error { return errors.New("offline") }}

	var result *bool
	status := nearby.Status{Code: nearby.StatusNeedsResolution, Resolution: nearby.ResolutionNearbyOptIn}
	require.NoError(t, r.StartResolution(nearby.OpPublish, status, func(ok bool) { result = &ok }))
	prompts.Answer("yes")

	require.NotNil(t, result)
	assert.False(t, *result)
}
