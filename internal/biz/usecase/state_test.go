package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func TestRateLimiter(t *testing.T) {
	assert := assert.New(t)
	rl := NewRateLimiter(5 * time.Second)

	ok, _ := rl.Allow("u", false, at(0))
	assert.True(ok)

	ok, wait := rl.Allow("u", false, at(2000))
	assert.False(ok)
	assert.Equal(3, CeilSeconds(wait))

	ok, _ = rl.Allow("u", false, at(5001))
	assert.True(ok)

	// rejected calls do not move the window
	ok, wait = rl.Allow("U", false, at(9000))
	assert.False(ok)
	assert.Equal(2, CeilSeconds(wait))
}

func TestRateLimiterPrivileged(t *testing.T) {
	assert := assert.New(t)
	rl := NewRateLimiter(5 * time.Second)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("admin", true, at(i))
		assert.True(ok)
	}
}

func TestCeilSeconds(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(0, CeilSeconds(0))
	assert.Equal(1, CeilSeconds(time.Millisecond))
	assert.Equal(1, CeilSeconds(time.Second))
	assert.Equal(2, CeilSeconds(1001*time.Millisecond))
}

func newDetector(t *testing.T) *AbuseDetector {
	d, err := NewAbuseDetector(AbuseConfig{
		BlockedPatterns: []string{"chat.whatsapp.com", "http://", "t.me/"},
		SpamWindow:      3 * time.Second,
		SpamThreshold:   5,
		MaxWarnings:     3,
	})
	if err != nil {
		t.Fatalf("NewAbuseDetector: %v", err)
	}
	return d
}

func TestAbuseBurst(t *testing.T) {
	assert := assert.New(t)
	d := newDetector(t)

	for i := 0; i < 5; i++ {
		assert.False(d.CheckBurst("u", at(i*400)), "call %d", i+1)
	}
	assert.True(d.CheckBurst("u", at(2000)))

	// a gap longer than the window resets the count
	assert.False(d.CheckBurst("u", at(2000+3100)))
}

func TestAbuseBurstPerActor(t *testing.T) {
	assert := assert.New(t)
	d := newDetector(t)

	for i := 0; i < 6; i++ {
		d.CheckBurst("a", at(i))
	}
	assert.False(d.CheckBurst("b", at(10)))

	d.ClearBurst("a")
	assert.False(d.CheckBurst("a", at(20)))
}

func TestAbuseBlockedContent(t *testing.T) {
	assert := assert.New(t)
	d := newDetector(t)

	assert.True(d.CheckBlockedContent("join CHAT.WHATSAPP.COM/abc"))
	assert.True(d.CheckBlockedContent("see t.me/channel"))
	assert.False(d.CheckBlockedContent("chatwhatsappcom"))
	assert.False(d.CheckBlockedContent(""))

	empty, err := NewAbuseDetector(AbuseConfig{MaxWarnings: 3})
	assert.NoError(err)
	assert.False(empty.CheckBlockedContent("http://anything"))
}

func TestWarningLedger(t *testing.T) {
	assert := assert.New(t)
	d := newDetector(t)

	prev := 0
	for i := 1; i <= 3; i++ {
		count, escalate := d.AddWarning("u")
		assert.GreaterOrEqual(count, prev)
		assert.Equal(i, count)
		assert.Equal(i == 3, escalate)
		prev = count
	}

	d.ResetWarnings("U")
	assert.Equal(0, d.Warnings("u"))
}

func TestResponseCacheFIFO(t *testing.T) {
	assert := assert.New(t)
	c := NewResponseCache(2, 600*time.Second)

	c.Set("a", "A", at(0))
	c.Set("b", "B", at(0))
	// reading a does not protect it from eviction
	_, _ = c.Get("a", at(1))
	c.Set("c", "C", at(2))

	_, ok := c.Get("a", at(3))
	assert.False(ok)
	v, ok := c.Get("b", at(3))
	assert.True(ok)
	assert.Equal("B", v)
	v, ok = c.Get("c", at(3))
	assert.True(ok)
	assert.Equal("C", v)
}

func TestResponseCacheTTL(t *testing.T) {
	assert := assert.New(t)
	c := NewResponseCache(2, 600*time.Second)

	c.Set("a", "A", at(0))
	_, ok := c.Get("a", at(599_999))
	assert.True(ok)

	_, ok = c.Get("a", at(600_000))
	assert.False(ok)
	assert.Equal(0, c.Len())
}

func TestResponseCacheOverwriteKeepsCapacity(t *testing.T) {
	assert := assert.New(t)
	c := NewResponseCache(2, time.Minute)

	c.Set("a", "A", at(0))
	c.Set("b", "B", at(0))
	c.Set("a", "A2", at(1))
	assert.Equal(2, c.Len())

	v, ok := c.Get("a", at(2))
	assert.True(ok)
	assert.Equal("A2", v)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "what is go", CacheKey("  What   is\tGo "))
}

func TestMediaVault(t *testing.T) {
	assert := assert.New(t)
	v := NewMediaVault(300 * time.Second)
	payload := VaultEntry{Kind: domain.KindImage, Data: []byte("img"), MimeType: "image/jpeg"}

	v.Capture("u", payload, at(0))
	got, ok := v.Reveal("u", at(240_000))
	assert.True(ok)
	assert.Equal([]byte("img"), got.Data)

	_, ok = v.Reveal("u", at(240_001))
	assert.False(ok)
}

func TestMediaVaultSweep(t *testing.T) {
	assert := assert.New(t)
	v := NewMediaVault(300 * time.Second)

	v.Capture("u", VaultEntry{Data: []byte("x")}, at(0))
	v.Capture("w", VaultEntry{Data: []byte("y")}, at(200_000))
	assert.Equal(1, v.Sweep(at(400_000)))
	assert.Equal(1, v.Len())

	_, ok := v.Reveal("u", at(400_001))
	assert.False(ok)
}

func TestMediaVaultOverwriteAndExpiry(t *testing.T) {
	assert := assert.New(t)
	v := NewMediaVault(300 * time.Second)

	v.Capture("u", VaultEntry{Data: []byte("first")}, at(0))
	v.Capture("u", VaultEntry{Data: []byte("second")}, at(10))
	got, ok := v.Reveal("u", at(20))
	assert.True(ok)
	assert.Equal("second", string(got.Data))

	v.Capture("u", VaultEntry{Data: []byte("late")}, at(0))
	_, ok = v.Reveal("u", at(300_001))
	assert.False(ok)
	assert.Equal(0, v.Len())
}

func TestMuteLedger(t *testing.T) {
	assert := assert.New(t)
	m := NewMuteLedger()

	m.Mute("u", at(60_000))
	assert.True(m.IsMuted("U", at(1)))
	assert.Len(m.Active(at(1)), 1)

	assert.False(m.IsMuted("u", at(60_000)))
	assert.Len(m.Active(at(1)), 0)

	m.Mute("u", at(60_000))
	assert.True(m.Unmute("u"))
	assert.False(m.Unmute("u"))
}

func TestPolicyStore(t *testing.T) {
	assert := assert.New(t)
	s := NewPolicyStore()

	assert.Equal(domain.DefaultGroupPolicy(), s.Get("g1"))

	p := s.Update("g1", func(p *domain.GroupPolicy) { p.AIEnabled = false })
	assert.False(p.AIEnabled)
	assert.False(s.Get("G1").AIEnabled)
	assert.True(s.Get("g2").AIEnabled)
}

func TestTranscriptBounded(t *testing.T) {
	assert := assert.New(t)
	tr := NewTranscript(3)

	for i := 0; i < 5; i++ {
		tr.Append("g", domain.Message{ID: string(rune('a' + i))})
	}
	got := tr.Recent("g")
	assert.Len(got, 3)
	assert.Equal("c", got[0].ID)
	assert.Equal("e", got[2].ID)

	got[0].ID = "mutated"
	assert.Equal("c", tr.Recent("g")[0].ID)
}
