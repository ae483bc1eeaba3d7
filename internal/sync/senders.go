package sync

import (
	"sort"
	"strings"

	"github.com/wesm/mailtriage/internal/model"
)

// aggregateSenders groups emails by normalized sender address and derives
// per-sender statistics, including the 0-10 noise score.
func aggregateSenders(emails []model.Email) []model.Sender {
	type accum struct {
		sender      model.Sender
		readCount   int
		unreadCount int
	}

	byAddr := make(map[string]*accum)
	var order []string

	for _, e := range emails {
		addr := extractAddress(e.From)
		if addr == "" {
			continue
		}

		acc, ok := byAddr[addr]
		if !ok {
			acc = &accum{sender: model.Sender{
				Email:     addr,
				Name:      extractDisplayName(e.From),
				FirstSeen: e.Timestamp,
				LastSeen:  e.Timestamp,
			}}
			byAddr[addr] = acc
			order = append(order, addr)
		}

		s := &acc.sender
		s.TotalEmails++
		n := float64(s.TotalEmails)
		s.AverageSize = (s.AverageSize*(n-1) + float64(e.SizeEstimate)) / n

		if !e.Timestamp.IsZero() {
			if s.FirstSeen.IsZero() || e.Timestamp.Before(s.FirstSeen) {
				s.FirstSeen = e.Timestamp
			}
			if e.Timestamp.After(s.LastSeen) {
				s.LastSeen = e.Timestamp
			}
		}

		if e.IsRead {
			acc.readCount++
		} else {
			acc.unreadCount++
		}
	}

	senders := make([]model.Sender, 0, len(order))
	for _, addr := range order {
		acc := byAddr[addr]
		s := acc.sender

		s.EngagementRate = float64(acc.readCount) / float64(s.TotalEmails) * 100
		s.NoiseScore = noiseScore(s.TotalEmails, acc.unreadCount, s.EngagementRate)

		s.IsMarketing = containsAny(s.Email, "marketing", "promo")
		s.IsNewsletter = containsAny(s.Email, "newsletter", "news")
		s.CanUnsubscribe = s.IsMarketing || s.IsNewsletter

		senders = append(senders, s)
	}

	// Noisiest first; ties break on address for determinism.
	sort.SliceStable(senders, func(i, j int) bool {
		if senders[i].NoiseScore != senders[j].NoiseScore {
			return senders[i].NoiseScore > senders[j].NoiseScore
		}
		return senders[i].Email < senders[j].Email
	})

	return senders
}

// noiseScore estimates how much a sender clutters the mailbox, on a 0-10
// scale, from volume, engagement, and unread ratio.
func noiseScore(total, unread int, engagementRate float64) float64 {
	if total <= 0 {
		return 0
	}

	unreadRatio := float64(unread) / float64(total)

	volumeScore := float64(total) / 10
	if volumeScore > 5 {
		volumeScore = 5
	}

	engagementScore := (100 - engagementRate) / 20

	score := volumeScore + engagementScore + unreadRatio*3
	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
