// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"scribe/internal/models"
)

// Factory builds domain entities with fake but plausible content.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
}

// NewFactory returns a factory. A zero seed draws from the clock, any other
// value makes the output reproducible.
func NewFactory(seed int64, maxDays int) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{faker: gofakeit.New(seed), maxDays: maxDays, now: time.Now}
}

// BuildUser returns an unsaved USER account. n keeps generated emails unique
// within one run.
func (f *Factory) BuildUser(n int, passwordHash string, overrides ...func(*models.User)) *models.User {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	local := strings.ToLower(first + "." + last)
	local = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || r == '.' {
			return r
		}
		return -1
	}, local)

	u := &models.User{
		Email:        fmt.Sprintf("%s%d@example.com", local, n),
		Name:         first + " " + last,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		CreatedAt:    f.pastTime(),
	}
	for _, override := range overrides {
		override(u)
	}
	return u
}

// BuildPost returns an unsaved post by author. Roughly one post in ten is
// disabled so moderation views have something to show.
func (f *Factory) BuildPost(author *models.User, overrides ...func(*models.Post)) *models.Post {
	p := &models.Post{
		Title:     strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), "."),
		Content:   f.faker.Paragraph(f.faker.Number(1, 4), f.faker.Number(2, 5), 12, "\n\n"),
		Enabled:   f.faker.Number(1, 10) != 1,
		AuthorID:  author.ID,
		CreatedAt: f.pastTime(),
	}
	if p.CreatedAt.Before(author.CreatedAt) {
		p.CreatedAt = author.CreatedAt
	}
	for _, override := range overrides {
		override(p)
	}
	return p
}

func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return f.now().Add(-back).UTC()
}
