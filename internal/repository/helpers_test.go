package repository

import (
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/psds-microservice/citizen-desk/internal/database/databasetest"
)

func openTestDB(t *testing.T) *gorm.DB {
	return databasetest.Open(t)
}

// fakeClock returns a fixed instant until moved.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
