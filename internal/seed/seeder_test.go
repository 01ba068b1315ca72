package seed

import (
	"errors"
	"testing"

	"github.com/kubilayture/notes-realtime/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	synced  bool
	length  int
	content string
	injects int
	err     error
}

func (p *fakeProvider) Synced() bool       { return p.synced }
func (p *fakeProvider) ContentLength() int { return p.length }

func (p *fakeProvider) SetContent(content string) error {
	if p.err != nil {
		return p.err
	}
	p.injects++
	p.content = content
	p.length = len(content)
	return nil
}

func TestTrySeed_notSynced(t *testing.T) {
	p := &fakeProvider{synced: false}
	s := NewSeeder(p, "hello", testutil.TestLogger(t))

	for i := 0; i < 10; i++ {
		assert.False(t, s.TrySeed(), "expected no seeding before first sync")
	}
	assert.Zero(t, p.injects, "expected no injection before first sync")
}

func TestTrySeed_exactlyOnce(t *testing.T) {
	p := &fakeProvider{synced: true}
	s := NewSeeder(p, "hello", testutil.TestLogger(t))

	seeded := 0
	for i := 0; i < 50; i++ {
		if s.TrySeed() {
			seeded++
		}
	}

	assert.Equal(t, 1, seeded, "expected exactly one successful seed across repeated checks")
	assert.Equal(t, 1, p.injects, "expected exactly one injection")
	assert.Equal(t, "hello", p.content)
	assert.True(t, s.Seeded())
}

func TestTrySeed_neverClobbersPeerContent(t *testing.T) {
	p := &fakeProvider{synced: true, length: 42}
	s := NewSeeder(p, "stale local copy", testutil.TestLogger(t))

	for i := 0; i < 10; i++ {
		assert.False(t, s.TrySeed(), "expected no injection into a non-empty document")
	}
	assert.Zero(t, p.injects)
	assert.False(t, s.Seeded())
}

func TestTrySeed_emptyInitialContent(t *testing.T) {
	p := &fakeProvider{synced: true}
	s := NewSeeder(p, "", testutil.TestLogger(t))

	assert.False(t, s.TrySeed(), "expected no injection of empty initial content")
	assert.Zero(t, p.injects)
}

func TestTrySeed_injectionFailureLeavesGateOpen(t *testing.T) {
	p := &fakeProvider{synced: true, err: errors.New("provider detached")}
	s := NewSeeder(p, "hello", testutil.TestLogger(t))

	assert.False(t, s.TrySeed(), "expected failed injection to report false")
	assert.False(t, s.Seeded(), "expected the gate to stay open after a failure")

	// next tick succeeds once the provider recovers
	p.err = nil
	assert.True(t, s.TrySeed(), "expected retry to succeed")
	assert.True(t, s.Seeded())
	assert.Equal(t, 1, p.injects)
}

func TestTrySeed_syncCompletesLater(t *testing.T) {
	p := &fakeProvider{}
	s := NewSeeder(p, "hello", testutil.TestLogger(t))

	assert.False(t, s.TrySeed(), "expected not-yet before sync")

	p.synced = true
	assert.True(t, s.TrySeed(), "expected seed once sync completes")
}

// Two editor instances over the same document each hold their own gate;
// the emptiness probe is what prevents the second instance from seeding
// over the first one's content.
func TestTrySeed_secondInstanceSeesContent(t *testing.T) {
	p := &fakeProvider{synced: true}
	first := NewSeeder(p, "hello", testutil.TestLogger(t))
	second := NewSeeder(p, "hello", testutil.TestLogger(t))

	assert.True(t, first.TrySeed())
	assert.False(t, second.TrySeed(), "expected the second instance to find a non-empty document")
	assert.Equal(t, 1, p.injects)
}
