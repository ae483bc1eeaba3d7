package sync

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/wesm/mailtriage/internal/model"
)

func makeEmail(id, from string, size int64, read bool, ts time.Time) model.Email {
	return model.Email{
		ID:           id,
		From:         from,
		SizeEstimate: size,
		IsRead:       read,
		Timestamp:    ts,
	}
}

func TestAggregateSendersScenario(t *testing.T) {
	// 12 messages from one sender, 3 unread:
	//   volumeScore = 1.2, engagementRate = 75, engagementScore = 1.25,
	//   unreadRatio = 0.25 -> noiseScore = 3.2
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var emails []model.Email
	for i := 0; i < 12; i++ {
		read := i >= 3 // first 3 unread
		emails = append(emails, makeEmail(
			fmt.Sprintf("m%d", i), "a@x.com", 1000, read, base.Add(time.Duration(i)*time.Hour)))
	}

	senders := aggregateSenders(emails)
	if len(senders) != 1 {
		t.Fatalf("got %d senders, want 1", len(senders))
	}

	s := senders[0]
	if s.TotalEmails != 12 {
		t.Errorf("TotalEmails = %d, want 12", s.TotalEmails)
	}
	if math.Abs(s.EngagementRate-75) > 1e-9 {
		t.Errorf("EngagementRate = %v, want 75", s.EngagementRate)
	}
	if math.Abs(s.NoiseScore-3.2) > 1e-9 {
		t.Errorf("NoiseScore = %v, want 3.2", s.NoiseScore)
	}
	if !s.FirstSeen.Equal(base) {
		t.Errorf("FirstSeen = %v, want %v", s.FirstSeen, base)
	}
	if !s.LastSeen.Equal(base.Add(11 * time.Hour)) {
		t.Errorf("LastSeen = %v", s.LastSeen)
	}
}

func TestNoiseScoreBounds(t *testing.T) {
	tests := []struct {
		name           string
		total, unread  int
		engagementRate float64
	}{
		{"AllUnreadHighVolume", 200, 200, 0},
		{"AllRead", 5, 0, 100},
		{"SingleMessage", 1, 1, 0},
		{"ZeroTotal", 0, 0, 0},
		{"OverfullEngagement", 10, 0, 150}, // engagement above 100 must not go negative
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := noiseScore(tt.total, tt.unread, tt.engagementRate)
			if got < 0 || got > 10 {
				t.Errorf("noiseScore(%d, %d, %v) = %v, out of [0, 10]",
					tt.total, tt.unread, tt.engagementRate, got)
			}
		})
	}
}

func TestAggregateSendersIncrementalMean(t *testing.T) {
	ts := time.Now().UTC()
	emails := []model.Email{
		makeEmail("m1", "b@x.com", 100, true, ts),
		makeEmail("m2", "b@x.com", 200, true, ts),
		makeEmail("m3", "b@x.com", 600, true, ts),
	}

	senders := aggregateSenders(emails)
	if len(senders) != 1 {
		t.Fatalf("got %d senders, want 1", len(senders))
	}
	if got := senders[0].AverageSize; math.Abs(got-300) > 1e-9 {
		t.Errorf("AverageSize = %v, want 300", got)
	}
}

func TestAggregateSendersNormalizesAddress(t *testing.T) {
	ts := time.Now().UTC()
	emails := []model.Email{
		makeEmail("m1", "Carol <CAROL@Example.COM>", 100, true, ts),
		makeEmail("m2", "carol@example.com", 100, true, ts),
	}

	senders := aggregateSenders(emails)
	if len(senders) != 1 {
		t.Fatalf("got %d senders, want 1 (addresses should normalize to one key)", len(senders))
	}
	if senders[0].Email != "carol@example.com" {
		t.Errorf("Email = %q", senders[0].Email)
	}
	if senders[0].Name != "Carol" {
		t.Errorf("Name = %q, want Carol", senders[0].Name)
	}
}

func TestMarketingNewsletterFlags(t *testing.T) {
	ts := time.Now().UTC()
	tests := []struct {
		from           string
		isMarketing    bool
		isNewsletter   bool
		canUnsubscribe bool
	}{
		{"promo@shop.com", true, false, true},
		{"marketing@corp.com", true, false, true},
		{"newsletter@daily.com", false, true, true},
		{"news@site.com", false, true, true},
		{"friend@home.com", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			senders := aggregateSenders([]model.Email{makeEmail("m1", tt.from, 10, true, ts)})
			s := senders[0]
			if s.IsMarketing != tt.isMarketing {
				t.Errorf("IsMarketing = %v, want %v", s.IsMarketing, tt.isMarketing)
			}
			if s.IsNewsletter != tt.isNewsletter {
				t.Errorf("IsNewsletter = %v, want %v", s.IsNewsletter, tt.isNewsletter)
			}
			if s.CanUnsubscribe != tt.canUnsubscribe {
				t.Errorf("CanUnsubscribe = %v, want %v", s.CanUnsubscribe, tt.canUnsubscribe)
			}
		})
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice <alice@example.com>", "alice@example.com"},
		{"alice@example.com", "alice@example.com"},
		{"\"Smith, Bob\" <BOB@X.COM>", "bob@x.com"},
		{"  spaced@x.com  ", "spaced@x.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractAddress(tt.in); got != tt.want {
			t.Errorf("extractAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendersSortedByNoise(t *testing.T) {
	ts := time.Now().UTC()
	var emails []model.Email
	// noisy: 10 unread messages
	for i := 0; i < 10; i++ {
		emails = append(emails, makeEmail(fmt.Sprintf("n%d", i), "noisy@x.com", 10, false, ts))
	}
	// quiet: 1 read message
	emails = append(emails, makeEmail("q1", "quiet@x.com", 10, true, ts))

	senders := aggregateSenders(emails)
	if len(senders) != 2 {
		t.Fatalf("got %d senders", len(senders))
	}
	if senders[0].Email != "noisy@x.com" {
		t.Errorf("noisiest sender should sort first, got %q", senders[0].Email)
	}
}
