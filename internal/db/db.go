package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/auth"
	"github.com/mzhao28/medichat/internal/chat"
	"github.com/mzhao28/medichat/internal/ratelimit"
)

// Connect opens the relational store. A DSN containing a tcp() host section
// is treated as MySQL; anything else is an embedded sqlite file path.
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.Contains(dsn, "@tcp(") {
		dialector = mysql.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

// Migrate creates any missing tables. Safe to run on every startup.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&auth.User{},
		&auth.Session{},
		&ratelimit.Counter{},
		&chat.Conversation{},
		&chat.Message{},
		&chat.RecentQuery{},
		&chat.FavoriteQuery{},
	)
}
